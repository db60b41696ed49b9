package normalize

import (
	"regexp"
	"time"
)

// dateLayouts covers the forms issuers put in usage-alert bodies. Hyphen and
// slash delimited forms first, then zero-unpadded variants, then generic
// timestamp fallbacks.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	time.RFC3339,
	time.RFC1123Z,
}

var jpDateRe = regexp.MustCompile(`([0-9]{4})年\s*([0-9]{1,2})月\s*([0-9]{1,2})日`)

// Date parses a loosely formatted date string and returns it in
// YYYY-MM-DD form. Returns "" when the string cannot be parsed; callers
// exclude empty results from month-distinct counting.
func Date(s string) string {
	if s == "" {
		return ""
	}

	if m := jpDateRe.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2006-1-2", m[1]+"-"+m[2]+"-"+m[3])
		if err == nil {
			return t.Format("2006-01-02")
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// MonthKey formats a timestamp as a YYYY-MM aggregation key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
