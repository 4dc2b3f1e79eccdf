// Package validator checks a workflow input document against the parameter
// schema reported by the schema extractor.
//
// Findings are plain strings collected in discovery order; malformed values
// never cause an error return. Only failures to obtain the schema or read the
// document itself are errors.
package validator

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/me/choppy/internal/jsondoc"
	"github.com/me/choppy/internal/schema"
)

// samplesFileMarker flags parameters whose value is a TSV samples table with a
// file path in its last column.
const samplesFileMarker = "samples_file"

const booleanHint = "Note that JSON boolean values must not be quoted."

// FS is the filesystem view used for File checks and samples tables.
type FS interface {
	Exists(path string) bool
	Open(path string) (io.ReadCloser, error)
}

// OSFS checks the local filesystem.
type OSFS struct{}

func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Validate compares doc against s and returns every finding. An empty result
// means the document is valid. Keys in doc that s does not declare are
// ignored.
func Validate(s *schema.Schema, doc *jsondoc.Object, fsys FS) []string {
	if fsys == nil {
		fsys = OSFS{}
	}
	errs := []string{}
	seen := make(map[string]bool)

	for _, param := range doc.Keys() {
		desc, ok := s.Lookup(param)
		if !ok {
			continue
		}
		val, _ := doc.Get(param)
		errs = append(errs, checkValue(param, desc, val, fsys)...)
		if strings.Contains(param, samplesFileMarker) {
			errs = append(errs, checkSamplesFile(param, val, fsys)...)
		}
		seen[param] = true
	}

	for _, p := range s.Params() {
		if seen[p.Name] || p.Optional {
			continue
		}
		errs = append(errs, fmt.Sprintf("Required parameter %s is missing from input json.", p.Name))
	}
	return errs
}

func checkValue(param string, desc schema.Descriptor, val any, fsys FS) []string {
	switch desc.Kind {
	case schema.KindFile:
		var errs []string
		if list, ok := val.([]any); ok {
			for _, f := range list {
				if !fileExists(f, fsys) {
					errs = append(errs, fmt.Sprintf("%s: %s is not a valid file path.", param, display(f)))
				}
			}
			return errs
		}
		if !fileExists(val, fsys) {
			errs = append(errs, fmt.Sprintf("%s: %s is not a valid file path.", param, display(val)))
		}
		return errs
	case schema.KindArray:
		if _, ok := val.([]any); !ok {
			return []string{fmt.Sprintf("%s: %s is not a valid array/list.", param, display(val))}
		}
	case schema.KindString:
		if _, ok := val.(string); !ok {
			return []string{fmt.Sprintf("%s: %s is not a valid String.", param, display(val))}
		}
	case schema.KindInt:
		if !isInt(val) {
			return []string{fmt.Sprintf("%s: %s is not a valid Int.", param, display(val))}
		}
	case schema.KindFloat:
		if !isFloat(val) {
			return []string{fmt.Sprintf("%s: %s is not a valid Float.", param, display(val))}
		}
	case schema.KindBoolean:
		if _, ok := val.(bool); !ok {
			return []string{fmt.Sprintf("%s: %s is not a valid Boolean. %s", param, display(val), booleanHint)}
		}
	default:
		return []string{fmt.Sprintf("%s: %s is not a recognized parameter value", param, display(val))}
	}
	return nil
}

// checkSamplesFile requires the last column of every row of a TSV table to
// name an existing file.
func checkSamplesFile(param string, val any, fsys FS) []string {
	path, ok := val.(string)
	if !ok {
		return []string{fmt.Sprintf("%s: samples file path %s is not a string", param, display(val))}
	}
	f, err := fsys.Open(path)
	if err != nil {
		return []string{err.Error()}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var errs []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, err.Error())
			break
		}
		if len(row) == 0 {
			continue
		}
		last := row[len(row)-1]
		if !fileExists(last, fsys) {
			errs = append(errs, fmt.Sprintf("File path %s found in samples file does not exist.", last))
		}
	}
	return errs
}

func fileExists(v any, fsys FS) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if s == "" {
		return false
	}
	return fsys.Exists(s)
}

func isInt(v any) bool {
	switch n := v.(type) {
	case json.Number:
		return !strings.ContainsAny(n.String(), ".eE")
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isFloat(v any) bool {
	switch n := v.(type) {
	case json.Number:
		return strings.ContainsAny(n.String(), ".eE")
	case float32, float64:
		return true
	}
	return false
}

// display renders a value the way it appears in an error message: strings
// verbatim, everything else as JSON.
func display(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ValidateFiles validates the JSON document at inputsPath against the
// parameters of the workflow at workflowPath. A malformed document or a
// schema extraction failure is returned as an error.
func ValidateFiles(ctx context.Context, ex schema.Extractor, workflowPath, inputsPath string, fsys FS) ([]string, error) {
	doc, err := jsondoc.DecodeFile(inputsPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inputsPath, err)
	}
	s, err := ex.GetParameterTypes(ctx, workflowPath)
	if err != nil {
		return nil, err
	}
	return Validate(s, doc, fsys), nil
}
