// Package normalize cleans up the raw fields extracted from notification
// emails: merchant names, amounts, currencies, and loosely formatted dates.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Boilerplate phrases issuers append to merchant lines. Stripped before
// grouping so "Netflix カードご利用" and "Netflix" land in the same bucket.
var merchantBoilerplate = []string{
	"カードご利用",
	"カード利用",
	"ご利用分",
	"ご利用",
	"海外利用分",
	"海外利用",
	"ショッピング",
	"card payment",
	"payment to",
}

var bracketReplacer = strings.NewReplacer(
	"【", " ", "】", " ",
	"「", " ", "」", " ",
	"『", " ", "』", " ",
	"（", " ", "）", " ",
	"(", " ", ")", " ",
	"[", " ", "]", " ",
	"<", " ", ">", " ",
)

// Known mangled forms seen in issuer emails (encoding damage, odd spacing).
var merchantCorrections = map[string]string{
	"ama zon":       "Amazon",
	"amazon co jp":  "Amazon",
	"アマゾン":          "Amazon",
	"ネツトフリツクス":      "Netflix",
	"netflix com":   "Netflix",
	"apple com bill": "Apple",
	"google *":      "Google",
}

// Fold applies NFKC compatibility normalization, folding full-width digits,
// ASCII, and currency symbols to their half-width forms.
func Fold(s string) string {
	return norm.NFKC.String(s)
}

// Merchant normalizes a raw merchant string. It returns the cleaned display
// name and the lower-cased key used for cross-message grouping.
func Merchant(raw string) (display, key string) {
	s := norm.NFKC.String(raw)
	s = bracketReplacer.Replace(s)

	for _, phrase := range merchantBoilerplate {
		s = replaceFold(s, phrase)
	}

	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " -:：、。")

	if corrected, ok := merchantCorrections[strings.ToLower(s)]; ok {
		s = corrected
	}

	return s, strings.ToLower(s)
}

// replaceFold removes every case-insensitive occurrence of phrase from s.
func replaceFold(s, phrase string) string {
	lower := strings.ToLower(s)
	phrase = strings.ToLower(phrase)
	for {
		i := strings.Index(lower, phrase)
		if i < 0 {
			return s
		}
		s = s[:i] + " " + s[i+len(phrase):]
		lower = lower[:i] + " " + lower[i+len(phrase):]
	}
}
