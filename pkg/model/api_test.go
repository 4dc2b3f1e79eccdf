package model

import "testing"

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"defaults", ListOptions{}, 20, 0},
		{"negative limit", ListOptions{Limit: -5}, 20, 0},
		{"over max", ListOptions{Limit: 500}, 100, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"valid", ListOptions{Limit: 50, Offset: 10}, 50, 10},
		{"filters kept", ListOptions{Limit: 5, Project: "wes-2024", Username: "alice"}, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project, user := tt.input.Project, tt.input.Username
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
			if tt.input.Project != project || tt.input.Username != user {
				t.Errorf("filters changed to %q/%q", tt.input.Project, tt.input.Username)
			}
		})
	}
}

func TestDefaultListOptions(t *testing.T) {
	opts := DefaultListOptions()
	if opts.Limit != 20 || opts.Offset != 0 {
		t.Errorf("DefaultListOptions() = %+v, want limit 20 offset 0", opts)
	}
	if opts.Project != "" || opts.Username != "" {
		t.Errorf("DefaultListOptions() has filters: %+v", opts)
	}
}
