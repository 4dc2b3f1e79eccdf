package app

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultVars is an app's default variable store: values used for template
// variables a samples record does not supply.
type DefaultVars struct {
	path string
	vars map[string]any
}

// LoadDefaults reads the defaults file of a. A missing file is an empty store.
func LoadDefaults(a *App) (*DefaultVars, error) {
	return LoadDefaultsFile(a.DefaultsPath())
}

// LoadDefaultsFile reads a defaults JSON object from path.
func LoadDefaultsFile(path string) (*DefaultVars, error) {
	d := &DefaultVars{path: path, vars: make(map[string]any)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(data, &d.vars); err != nil {
		return nil, fmt.Errorf("parse defaults %s: %w", path, err)
	}
	return d, nil
}

// Get returns the raw default for key.
func (d *DefaultVars) Get(key string) (any, bool) {
	v, ok := d.vars[key]
	return v, ok
}

// Has reports whether key has a non-empty default.
func (d *DefaultVars) Has(key string) bool {
	v, ok := d.vars[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	return true
}

// Set stores a default value.
func (d *DefaultVars) Set(key string, value any) {
	d.vars[key] = value
}

// Delete removes a default value.
func (d *DefaultVars) Delete(key string) {
	delete(d.vars, key)
}

// Keys returns all keys, sorted.
func (d *DefaultVars) Keys() []string {
	keys := make([]string, 0, len(d.vars))
	for k := range d.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff returns the keys from keys that have no default, sorted.
func (d *DefaultVars) Diff(keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := d.vars[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Show returns the defaults for the given keys, or all defaults when keys is
// empty.
func (d *DefaultVars) Show(keys ...string) map[string]any {
	out := make(map[string]any)
	if len(keys) == 0 {
		keys = d.Keys()
	}
	for _, k := range keys {
		if v, ok := d.vars[k]; ok {
			out[k] = v
		}
	}
	return out
}

// String returns the default for key as it is substituted into templates:
// strings verbatim, anything else as JSON.
func (d *DefaultVars) String(key string) string {
	v, ok := d.vars[key]
	if !ok || v == nil {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Save writes the store back as sorted, indented JSON.
func (d *DefaultVars) Save() error {
	data, err := json.MarshalIndent(d.vars, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.path, append(data, '\n'), 0o644)
}
