package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount parses an extracted amount string for the given currency code.
// Grouping separators are stripped before parsing. JPY amounts are rounded
// to whole yen; every other currency is rounded to two decimal places.
// Non-numeric, NaN, and non-positive values are rejected.
func Amount(s, currency string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", "，", "", " ", "", "　", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount string")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("malformed amount %q: not a finite number", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %v", v)
	}

	if currency == "JPY" {
		return math.Round(v), nil
	}
	return math.Round(v*100) / 100, nil
}
