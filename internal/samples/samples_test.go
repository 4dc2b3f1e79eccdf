package samples

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/me/choppy/pkg/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantKeys []string
		wantIDs  []string
	}{
		{
			name:     "csv",
			file:     "samples.csv",
			content:  "sample_id,fastq1,fastq2\ns1,/a_1.fq,/a_2.fq\ns2, /b_1.fq ,/b_2.fq\n",
			wantKeys: []string{"sample_id", "fastq1", "fastq2"},
			wantIDs:  []string{"s1", "s2"},
		},
		{
			name:     "tsv by extension",
			file:     "samples.tsv",
			content:  "fastq\tsample_id\n/a.fq\ts1\n",
			wantKeys: []string{"fastq", "sample_id"},
			wantIDs:  []string{"s1"},
		},
		{
			name:     "csv with bom and no extension",
			file:     "samples",
			content:  "\xef\xbb\xbfsample_id,x\ns9,1\n",
			wantKeys: []string{"sample_id", "x"},
			wantIDs:  []string{"s9"},
		},
		{
			name:     "json object",
			file:     "sample.json",
			content:  `{"sample_id": "s1", "threads": 4}`,
			wantKeys: []string{"sample_id", "threads"},
			wantIDs:  []string{"s1"},
		},
		{
			name:     "json list sniffed",
			file:     "samples.dat",
			content:  ` [{"b": "1", "sample_id": "s1"}, {"sample_id": "s2"}]`,
			wantKeys: []string{"b", "sample_id"},
			wantIDs:  []string{"s1", "s2"},
		},
		{
			name:     "yaml list",
			file:     "samples.yaml",
			content:  "- sample_id: s1\n  fastq: /a.fq\n- sample_id: s2\n  fastq:\n",
			wantKeys: []string{"sample_id", "fastq"},
			wantIDs:  []string{"s1", "s2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(records[0].Keys(), tt.wantKeys) {
				t.Errorf("keys = %v, want %v", records[0].Keys(), tt.wantKeys)
			}
			var ids []string
			for _, r := range records {
				ids = append(ids, r.SampleID())
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestParse_Values(t *testing.T) {
	records, err := Parse(writeFile(t, "s.csv", "sample_id,fastq\ns2, /b_1.fq \n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0].Value("fastq"); got != "/b_1.fq" {
		t.Errorf("fastq = %q", got)
	}

	records, err = Parse(writeFile(t, "s.json", `{"sample_id": "s1", "threads": 4, "flag": true}`))
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Value("threads") != "4" || records[0].Value("flag") != "true" {
		t.Errorf("non-string values = %q, %q", records[0].Value("threads"), records[0].Value("flag"))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"empty header column", "s.csv", "sample_id,,x\ns1,a,b\n"},
		{"duplicate header", "s.csv", "sample_id,sample_id\ns1,s1\n"},
		{"ragged row", "s.csv", "sample_id,x\ns1\n"},
		{"bad json", "s.json", `[{"sample_id": "s1"`},
		{"nested yaml", "s.yml", "- sample_id: s1\n  files: [a, b]\n"},
		{"yaml scalar", "s.yml", "just text\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(writeFile(t, tt.file, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCheck(t *testing.T) {
	if err := Check(nil); !errors.Is(err, model.ErrNoSamples) {
		t.Errorf("Check(nil) = %v", err)
	}
	recs := []*model.Record{
		model.RecordFromPairs("sample_id", "s1"),
		model.RecordFromPairs("fastq", "/a.fq"),
	}
	err := Check(recs)
	if !errors.Is(err, model.ErrMissingSampleID) {
		t.Fatalf("Check() = %v, want ErrMissingSampleID", err)
	}
	if !strings.Contains(err.Error(), "record 2") {
		t.Errorf("error should name the record: %v", err)
	}
	if err := Check(recs[:1]); err != nil {
		t.Errorf("Check(valid) = %v", err)
	}
	if err := Check([]*model.Record{recs[0], nil}); !errors.Is(err, model.ErrMissingSampleID) {
		t.Errorf("Check(nil record) = %v, want ErrMissingSampleID", err)
	}
}

func TestHeader(t *testing.T) {
	got, err := Header(writeFile(t, "s.csv", "sample_id, fastq\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"sample_id", "fastq"}) {
		t.Errorf("Header(csv) = %v", got)
	}
	got, err = Header(writeFile(t, "s.json", `[{"x": "1", "sample_id": "a"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"x", "sample_id"}) {
		t.Errorf("Header(json) = %v", got)
	}
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "submitted.csv")

	ok, err := WriteManifest(path, nil)
	if err != nil || ok {
		t.Fatalf("WriteManifest(nil) = %v, %v", ok, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("empty list must not create a file")
	}

	recs := []*model.Record{
		model.RecordFromPairs("sample_id", "s1", "note", "a,b", "workflow_id", "wf-1"),
		model.RecordFromPairs("sample_id", "s2", "extra", "dropped"),
	}
	ok, err = WriteManifest(path, recs)
	if err != nil || !ok {
		t.Fatalf("WriteManifest = %v, %v", ok, err)
	}
	data, _ := os.ReadFile(path)
	want := "sample_id,note,workflow_id\ns1,\"a,b\",wf-1\ns2,,\n"
	if string(data) != want {
		t.Errorf("manifest =\n%s\nwant\n%s", data, want)
	}

	back, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if back[0].Value("note") != "a,b" {
		t.Errorf("round trip note = %q", back[0].Value("note"))
	}
}

func TestWriteHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.csv")
	if err := WriteHeader(path, []string{"sample_id", "fastq"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "sample_id,fastq\n" {
		t.Errorf("got %q", data)
	}
}
