// Package schema turns the free-text parameter types reported by the
// workflow schema extractor into a closed set of kinds.
package schema

import (
	"fmt"
	"strings"

	"github.com/me/choppy/internal/jsondoc"
)

// Kind is the base type of a workflow input parameter.
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindArray
	KindString
	KindInt
	KindFloat
	KindBoolean
)

var kindNames = map[Kind]string{
	KindUnknown: "Unknown",
	KindFile:    "File",
	KindArray:   "Array",
	KindString:  "String",
	KindInt:     "Int",
	KindFloat:   "Float",
	KindBoolean: "Boolean",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Match order matters: "Array[File]" is a File parameter, "Array[String]" an
// Array parameter.
var matchOrder = []Kind{KindFile, KindArray, KindString, KindInt, KindFloat, KindBoolean}

// Descriptor is a parsed type descriptor.
type Descriptor struct {
	Raw      string
	Kind     Kind
	Optional bool
}

// ParseDescriptor classifies a descriptor such as "Array[File]" or
// "Int (optional, default = 1)".
func ParseDescriptor(raw string) Descriptor {
	d := Descriptor{Raw: raw, Optional: strings.Contains(raw, "optional")}
	for _, k := range matchOrder {
		if strings.Contains(raw, kindNames[k]) {
			d.Kind = k
			break
		}
	}
	return d
}

// Param is a named parameter declaration.
type Param struct {
	Name string
	Descriptor
}

// Schema is the ordered set of parameters a workflow declares.
type Schema struct {
	params []Param
	index  map[string]int
}

// New builds a Schema from name/descriptor pairs in the given order.
func New(pairs ...string) *Schema {
	s := &Schema{index: make(map[string]int)}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.add(pairs[i], pairs[i+1])
	}
	return s
}

func (s *Schema) add(name, raw string) {
	if i, ok := s.index[name]; ok {
		s.params[i].Descriptor = ParseDescriptor(raw)
		return
	}
	s.index[name] = len(s.params)
	s.params = append(s.params, Param{Name: name, Descriptor: ParseDescriptor(raw)})
}

// Parse reads the extractor's JSON output: an object mapping parameter names
// to descriptor strings.
func Parse(data []byte) (*Schema, error) {
	obj, err := jsondoc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse parameter types: %w", err)
	}
	s := &Schema{index: make(map[string]int)}
	for _, name := range obj.Keys() {
		v, _ := obj.Get(name)
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %s: descriptor must be a string, got %T", name, v)
		}
		s.add(name, raw)
	}
	return s, nil
}

// Params returns the declarations in extractor order.
func (s *Schema) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

// Lookup returns the descriptor declared for name.
func (s *Schema) Lookup(name string) (Descriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.params[i].Descriptor, true
}

// Len returns the number of declared parameters.
func (s *Schema) Len() int {
	return len(s.params)
}

// Required returns the parameters not marked optional.
func (s *Schema) Required() []Param {
	var out []Param
	for _, p := range s.params {
		if !p.Optional {
			out = append(out, p)
		}
	}
	return out
}
