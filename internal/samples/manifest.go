package samples

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/me/choppy/pkg/model"
)

// WriteManifest writes records as a CSV table whose header is the key order
// of the first record. Keys a later record lacks are written empty. Nothing
// is written for an empty list; the returned bool reports whether the file
// was created.
func WriteManifest(path string, records []*model.Record) (bool, error) {
	if len(records) == 0 {
		return false, nil
	}
	header := records[0].Keys()
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(header))
		for i, k := range header {
			row[i] = r.Value(k)
		}
		rows = append(rows, row)
	}
	if err := writeCSV(path, header, rows); err != nil {
		return false, err
	}
	return true, nil
}

// WriteHeader writes a samples template holding only the given columns.
func WriteHeader(path string, columns []string) error {
	return writeCSV(path, columns, nil)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
