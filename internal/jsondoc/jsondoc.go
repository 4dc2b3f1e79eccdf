// Package jsondoc checks JSON syntax with line/column diagnostics and decodes
// top-level JSON objects without losing key order.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// SyntaxError locates a JSON parse failure in the source text.
type SyntaxError struct {
	Msg    string // parser message
	Line   int    // 1-based
	Column int    // 1-based, in characters
	Offset int    // 0-based byte offset of the offending character
	Source string // the offending source line, without newline
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: line %d column %d (char %d)", e.Msg, e.Line, e.Column, e.Offset)
}

// Diagnostic renders the error with the source line and a caret under the
// offending column.
func (e *SyntaxError) Diagnostic() string {
	pad := e.Column - 1
	if pad < 0 {
		pad = 0
	}
	return fmt.Sprintf("%s\n\n%s\n%s^-- %s\n", e.Error(), e.Source, strings.Repeat(" ", pad), e.Msg)
}

// Check reports whether data is well-formed JSON. A parse failure comes back
// as *SyntaxError.
func Check(data []byte) error {
	var v any
	err := json.Unmarshal(data, &v)
	if err == nil {
		return nil
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return locate(data, se)
	}
	return err
}

// CheckFile runs Check on the contents of path.
func CheckFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Check(data)
}

func locate(data []byte, se *json.SyntaxError) *SyntaxError {
	// Offset counts the bytes consumed, including the offending one.
	pos := int(se.Offset) - 1
	if strings.Contains(se.Error(), "unexpected end") {
		pos = len(data)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(data) {
		pos = len(data)
	}

	head := data[:pos]
	line := bytes.Count(head, []byte{'\n'}) + 1
	start := bytes.LastIndexByte(head, '\n') + 1
	end := bytes.IndexByte(data[start:], '\n')
	var src []byte
	if end < 0 {
		src = data[start:]
	} else {
		src = data[start : start+end]
	}

	return &SyntaxError{
		Msg:    se.Error(),
		Line:   line,
		Column: utf8.RuneCount(data[start:pos]) + 1,
		Offset: pos,
		Source: strings.TrimRight(string(src), "\r"),
	}
}

// Object is a decoded top-level JSON object that remembers key order.
// Nested values use the usual encoding/json shapes, with numbers kept as
// json.Number so integers and floats stay distinguishable.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the value for key.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Set stores a value, appending new keys to the order.
func (o *Object) Set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// Decode parses data as a JSON object. Syntax problems are reported as
// *SyntaxError; a valid document that is not an object is an error too.
func Decode(data []byte) (*Object, error) {
	if err := Check(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	obj := NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		obj.Set(key, v)
	}
	return obj, nil
}

// DecodeFile runs Decode on the contents of path.
func DecodeFile(path string) (*Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
