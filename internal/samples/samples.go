// Package samples reads samples sources (JSON, YAML or delimited tables) into
// ordered records and writes the submitted/failed manifests.
package samples

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/choppy/pkg/model"
)

// Format is the detected layout of a samples source.
type Format int

const (
	FormatCSV Format = iota
	FormatTSV
	FormatJSON
	FormatYAML
)

// Detect picks a format from the file extension, falling back to the content:
// a leading '{' or '[' means JSON, a tab in the header line means TSV.
func Detect(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".tsv", ".txt":
		return FormatTSV
	case ".csv":
		return FormatCSV
	}
	trimmed := bytes.TrimLeft(trimBOM(data), " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	first, _, _ := bytes.Cut(trimmed, []byte("\n"))
	if bytes.Contains(first, []byte("\t")) && !bytes.Contains(first, []byte(",")) {
		return FormatTSV
	}
	return FormatCSV
}

// Parse reads the samples source at path.
func Parse(path string) ([]*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	records, err := ParseBytes(Detect(path, data), data)
	if err != nil {
		return nil, fmt.Errorf("parse samples %s: %w", path, err)
	}
	return records, nil
}

// ParseBytes decodes data in the given format.
func ParseBytes(format Format, data []byte) ([]*model.Record, error) {
	data = trimBOM(data)
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	case FormatTSV:
		return parseDelimited(data, '\t')
	default:
		return parseDelimited(data, ',')
	}
}

// Check verifies that records is non-empty and every record has a sample_id.
func Check(records []*model.Record) error {
	if len(records) == 0 {
		return model.ErrNoSamples
	}
	for i, r := range records {
		if r == nil || strings.TrimSpace(r.SampleID()) == "" {
			return fmt.Errorf("record %d: %w", i+1, model.ErrMissingSampleID)
		}
	}
	return nil
}

// Header returns the column names of a samples source: the header row of a
// table, or the keys of the first record of a structured source.
func Header(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	data = trimBOM(data)
	switch f := Detect(path, data); f {
	case FormatCSV, FormatTSV:
		r := newReader(data, delimiter(f))
		header, err := r.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return cleanHeader(header)
	default:
		records, err := ParseBytes(f, data)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0].Keys(), nil
	}
}

func parseJSON(data []byte) ([]*model.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		r := model.NewRecord()
		if err := json.Unmarshal(trimmed, r); err != nil {
			return nil, err
		}
		return []*model.Record{r}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	records := make([]*model.Record, 0, len(raw))
	for i, item := range raw {
		r := model.NewRecord()
		if err := json.Unmarshal(item, r); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func parseYAML(data []byte) ([]*model.Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		r, err := yamlRecord(root)
		if err != nil {
			return nil, err
		}
		return []*model.Record{r}, nil
	case yaml.SequenceNode:
		records := make([]*model.Record, 0, len(root.Content))
		for i, item := range root.Content {
			r, err := yamlRecord(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			records = append(records, r)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("line %d: expected a mapping or a list of mappings", root.Line)
	}
}

func yamlRecord(n *yaml.Node) (*model.Record, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	r := model.NewRecord()
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: value of %q must be a scalar", v.Line, k.Value)
		}
		if v.Tag == "!!null" {
			r.Set(k.Value, "")
			continue
		}
		r.Set(k.Value, v.Value)
	}
	return r, nil
}

func delimiter(f Format) rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

func newReader(data []byte, comma rune) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.TrimLeadingSpace = true
	if comma == '\t' {
		r.LazyQuotes = true
	}
	return r
}

func parseDelimited(data []byte, comma rune) ([]*model.Record, error) {
	r := newReader(data, comma)
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header, err = cleanHeader(header); err != nil {
		return nil, err
	}

	var records []*model.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := model.NewRecord()
		for i, col := range header {
			rec.Set(col, strings.TrimSpace(row[i]))
		}
		records = append(records, rec)
	}
	return records, nil
}

func cleanHeader(header []string) ([]string, error) {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate header column %q", h)
		}
		seen[h] = true
		out[i] = h
	}
	return out, nil
}

func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
