package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var rxKeepNums = regexp.MustCompile(`[^\d.,\-]`)

// ParsePrice reads prices as they appear in supplier sheets: "15.50",
// "AED 1,234.50", "1 234,50", "1.234,5", "€12". A lone comma followed by
// exactly three digits is a thousands separator; otherwise it is decimal.
// Empty or unparseable input reports ok=false.
func ParsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	repl := strings.NewReplacer("\u00A0", "", "\u202F", "", " ", "", "\t", "", "'", "")
	s = rxKeepNums.ReplaceAllString(repl.Replace(s), "")
	if s == "" || s == "-" {
		return 0, false
	}

	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-comma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
