package fileio

import (
	"bytes"
	"errors"
	"io"
	"strings"

	xls "github.com/extrame/xls"
)

// computeMaxCols finds the real table width by probing every row. Row.LastCol
// is unreliable in workbooks exported by ERP systems.
func computeMaxCols(sheet *xls.WorkSheet) int {
	const probeMax = 256
	maxCols := 0
	for i := 0; i <= int(sheet.MaxRow); i++ {
		r := sheet.Row(i)
		if r == nil {
			continue
		}
		for j := maxCols; j < probeMax; j++ {
			if normalizeCell(r.Col(j)) != "" {
				maxCols = j + 1
			}
		}
	}
	return max(maxCols, 1)
}

func readXLS(r io.Reader, headerRow int) ([]map[string]string, error) {
	if headerRow <= 0 {
		return nil, errors.New("headerRow must be 1-based and >= 1")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var wb *xls.WorkBook
	var lastErr error
	for _, ch := range []string{"utf-8", "windows-1252", "windows-1256"} {
		wb, err = xls.OpenReader(bytes.NewReader(b), ch)
		if err == nil && wb != nil {
			break
		}
		lastErr = err
	}
	if wb == nil {
		if lastErr == nil {
			lastErr = errors.New("xls: failed to open workbook")
		}
		return nil, lastErr
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil
	}

	maxCols := computeMaxCols(sheet)
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		cols := make([]string, maxCols)
		if row != nil {
			for j := 0; j < maxCols; j++ {
				cols[j] = normalizeCell(row.Col(j))
			}
		}
		rows = append(rows, cols)
	}

	h := pickHeader(rows, headerRow)
	return rowsToMaps(rows, h, headerRow), nil
}

// normalizeCell trims a cell and drops the trailing ".0" the xls reader
// leaves on whole numbers.
func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") && strings.Trim(s[:len(s)-2], "0123456789-") == "" && len(s) > 2 {
		s = s[:len(s)-2]
	}
	return s
}
