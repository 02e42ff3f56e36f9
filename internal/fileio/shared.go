package fileio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ReadAnyMaps picks a reader by file extension and returns the data rows
// keyed by header. headerRow is 1-based.
func ReadAnyMaps(r io.Reader, filename string, headerRow int) ([]map[string]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx":
		return readXLSX(r, headerRow)
	case ".xls":
		return readXLS(r, headerRow)
	case ".csv":
		return readCSV(r, headerRow, 0)
	case ".tsv", ".txt":
		return readCSV(r, headerRow, '\t')
	default:
		return nil, fmt.Errorf("unsupported file: %s", filename)
	}
}

// pickHeader takes the header row and names blank columns "Column N".
// A duplicate header gets its column number appended so no value is lost.
func pickHeader(rows [][]string, headerRow int) []string {
	idx := headerRow - 1
	if idx < 0 || idx >= len(rows) {
		idx = 0
	}
	h := rows[idx]
	out := make([]string, len(h))
	seen := make(map[string]bool, len(h))
	for i, v := range h {
		v = strings.TrimSpace(strings.TrimPrefix(v, "\ufeff"))
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		if seen[v] {
			v = fmt.Sprintf("%s (%d)", v, i+1)
		}
		seen[v] = true
		out[i] = v
	}
	return out
}

// rowsToMaps turns the rows below the header into maps, dropping fully blank rows.
func rowsToMaps(rows [][]string, headers []string, headerRow int) []map[string]string {
	start := max(headerRow, 1)
	var out []map[string]string
	for r := start; r < len(rows); r++ {
		rec := rows[r]
		m := make(map[string]string, len(headers))
		empty := true
		for c, h := range headers {
			var v string
			if c < len(rec) {
				v = strings.TrimSpace(rec[c])
			}
			if v != "" {
				empty = false
			}
			m[h] = v
		}
		if !empty {
			out = append(out, m)
		}
	}
	return out
}
