package normalize

import "strings"

// currencySignals is checked in fixed priority order, home currency first.
var currencySignals = []struct {
	code    string
	markers []string
}{
	{"JPY", []string{"¥", "￥", "円", "JPY"}},
	{"USD", []string{"$", "USD", "ドル"}},
	{"EUR", []string{"€", "EUR", "ユーロ"}},
	{"GBP", []string{"£", "GBP", "ポンド"}},
}

// HomeCurrency is the default currency when no signal is present.
const HomeCurrency = "JPY"

// Currency detects the currency referenced in text, defaulting to the home
// currency when nothing matches.
func Currency(text string) string {
	for _, sig := range currencySignals {
		for _, m := range sig.markers {
			if strings.Contains(text, m) {
				return sig.code
			}
		}
	}
	return HomeCurrency
}
