// Package pattern holds the static signature tables used to classify
// notification emails: subscription-service signatures, card-issuer
// signatures, generic amount rules, and the category keyword lists.
//
// The tables are pure data, compiled and injected at construction so tests
// can run parallel classifier instances with different pattern sets.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is one service or issuer signature. A pattern matches a message
// only when both a sender rule and a subject rule match; rules are checked
// in order and the first hit wins.
type Pattern struct {
	ID            string
	Service       string
	Issuer        string
	Currency      string
	Cadence       string
	SenderRules   []string
	SubjectRules  []string
	AmountRules   []string
	MerchantRules []string
	Confidence    float64
}

// AmountRule is a generic, currency-tagged amount regex. Rules are applied
// in table order; the currency is taken from the rule, or detected from
// context when empty.
type AmountRule struct {
	Name     string
	Regex    string
	Currency string
}

// CompiledPattern pairs a Pattern with its compiled extraction rules.
type CompiledPattern struct {
	Pattern
	amount   []*regexp.Regexp
	merchant []*regexp.Regexp
}

// CompiledAmountRule pairs an AmountRule with its compiled regex.
type CompiledAmountRule struct {
	AmountRule
	re *regexp.Regexp
}

// Store is an immutable, compiled pattern store.
type Store struct {
	subscriptions  []CompiledPattern
	issuers        []CompiledPattern
	genericAmounts []CompiledAmountRule
	merchantLabels []*regexp.Regexp
	storeSuffix    *regexp.Regexp
	keywords       Keywords
}

// Config is the raw, uncompiled pattern data for a Store.
type Config struct {
	Subscriptions  []Pattern
	Issuers        []Pattern
	GenericAmounts []AmountRule
	MerchantLabels []string
	StoreSuffix    string
	Keywords       Keywords
}

// NewStore compiles a pattern configuration. Table order is preserved.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{keywords: cfg.Keywords}

	var err error
	if s.subscriptions, err = compilePatterns(cfg.Subscriptions); err != nil {
		return nil, err
	}
	if s.issuers, err = compilePatterns(cfg.Issuers); err != nil {
		return nil, err
	}

	for _, r := range cfg.GenericAmounts {
		re, reErr := regexp.Compile(r.Regex)
		if reErr != nil {
			return nil, fmt.Errorf("failed to compile amount rule %s: %w", r.Name, reErr)
		}
		s.genericAmounts = append(s.genericAmounts, CompiledAmountRule{AmountRule: r, re: re})
	}

	for _, l := range cfg.MerchantLabels {
		re, reErr := regexp.Compile(l)
		if reErr != nil {
			return nil, fmt.Errorf("failed to compile merchant label %q: %w", l, reErr)
		}
		s.merchantLabels = append(s.merchantLabels, re)
	}

	if cfg.StoreSuffix != "" {
		re, reErr := regexp.Compile(cfg.StoreSuffix)
		if reErr != nil {
			return nil, fmt.Errorf("failed to compile store suffix rule: %w", reErr)
		}
		s.storeSuffix = re
	}

	return s, nil
}

func compilePatterns(patterns []Pattern) ([]CompiledPattern, error) {
	compiled := make([]CompiledPattern, 0, len(patterns))
	for _, p := range patterns {
		cp := CompiledPattern{Pattern: p}
		for _, r := range p.AmountRules {
			re, err := regexp.Compile(r)
			if err != nil {
				return nil, fmt.Errorf("pattern %s: bad amount rule %q: %w", p.ID, r, err)
			}
			cp.amount = append(cp.amount, re)
		}
		for _, r := range p.MerchantRules {
			re, err := regexp.Compile(r)
			if err != nil {
				return nil, fmt.Errorf("pattern %s: bad merchant rule %q: %w", p.ID, r, err)
			}
			cp.merchant = append(cp.merchant, re)
		}
		compiled = append(compiled, cp)
	}
	return compiled, nil
}

// Subscriptions returns the subscription signature table in table order.
func (s *Store) Subscriptions() []CompiledPattern { return s.subscriptions }

// Issuers returns the issuer signature table in table order.
func (s *Store) Issuers() []CompiledPattern { return s.issuers }

// GenericAmounts returns the generic amount rules in priority order.
func (s *Store) GenericAmounts() []CompiledAmountRule { return s.genericAmounts }

// MerchantLabels returns the compiled labelled-field merchant rules.
func (s *Store) MerchantLabels() []*regexp.Regexp { return s.merchantLabels }

// StoreSuffix returns the store-name suffix rule, or nil.
func (s *Store) StoreSuffix() *regexp.Regexp { return s.storeSuffix }

// CategoryKeywords returns the aggregation keyword lists.
func (s *Store) CategoryKeywords() Keywords { return s.keywords }

// Matches reports whether the pattern's sender and subject rules both match.
// Rule matching is case-insensitive substring containment.
func (p *CompiledPattern) Matches(from, subject string) bool {
	return matchAny(p.SenderRules, from) && matchAny(p.SubjectRules, subject)
}

// ExtractAmount runs the pattern's amount rules in order and returns the
// first captured amount string.
func (p *CompiledPattern) ExtractAmount(text string) (string, bool) {
	return firstCapture(p.amount, text)
}

// ExtractMerchant runs the pattern's merchant rules in order and returns the
// first captured merchant string.
func (p *CompiledPattern) ExtractMerchant(text string) (string, bool) {
	return firstCapture(p.merchant, text)
}

// Find applies a compiled generic amount rule to text. It returns the
// captured amount string and the full matched substring (used for currency
// inference from surrounding symbols).
func (r *CompiledAmountRule) Find(text string) (amount, matched string, ok bool) {
	m := r.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", "", false
	}
	return m[1], m[0], true
}

func matchAny(rules []string, text string) bool {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if strings.Contains(lower, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

func firstCapture(rules []*regexp.Regexp, text string) (string, bool) {
	for _, re := range rules {
		m := re.FindStringSubmatch(text)
		if len(m) >= 2 && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}
