package fileio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readCSV reads delimited text, converting legacy encodings to UTF-8. A zero
// comma sniffs ',' or ';' from the first line.
func readCSV(r io.Reader, headerRow int, comma rune) ([]map[string]string, error) {
	br := bufio.NewReader(r)

	peek, _ := br.Peek(4096)
	cs := "utf-8"
	if len(peek) > 0 {
		if det, err := chardet.NewTextDetector().DetectBest(peek); err == nil && det != nil {
			cs = strings.ToLower(det.Charset)
		}
	}

	var dec io.Reader = br
	switch cs {
	case "windows-1252", "iso-8859-1":
		dec = transform.NewReader(br, charmap.Windows1252.NewDecoder())
	case "windows-1256", "iso-8859-6":
		dec = transform.NewReader(br, charmap.Windows1256.NewDecoder())
	case "utf-16le", "utf-16be":
		dec = transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
	default:
		// utf-8; a BOM is stripped from the header by pickHeader
	}

	if comma == 0 {
		comma = sniffComma(peek)
	}

	cr := csv.NewReader(dec)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	h := pickHeader(rows, headerRow)
	return rowsToMaps(rows, h, headerRow), nil
}

func sniffComma(peek []byte) rune {
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
