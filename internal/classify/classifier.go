// Package classify implements the pattern-based message classifier. It turns
// one InboundMessage into a confidence-scored, typed Result.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/normalize"
	"github.com/mizuno-h/cardwatch/internal/pattern"
)

// ShortCircuitConfidence is the per-pass confidence at which later passes
// are skipped.
const ShortCircuitConfidence = 0.7

// GenericConfidence is the fixed confidence of the generic fallback pass.
const GenericConfidence = 0.3

var occurrenceDateRe = regexp.MustCompile(
	`(?:ご利用日時|ご利用日|利用日)[:：]?\s*([0-9]{4}[/\-年][0-9]{1,2}[/\-月][0-9]{1,2}日?(?:\s+[0-9]{1,2}:[0-9]{2}(?::[0-9]{2})?)?)`)

var senderDomainRe = regexp.MustCompile(`@([A-Za-z0-9.\-]+)`)

// Classifier classifies messages against an injected pattern store.
type Classifier struct {
	store *pattern.Store
}

// New creates a classifier bound to the given pattern store.
func New(store *pattern.Store) *Classifier {
	return &Classifier{store: store}
}

// Classify produces a Result for one message. It never panics and never
// returns an error: every failure path resolves to Success=false with a
// populated error list.
//
// Passes run in strict priority order and stop at the first pass whose
// result confidence clears ShortCircuitConfidence: subscription patterns,
// then issuer patterns, then the generic fallback. The reported confidence
// is the maximum across the passes that ran.
func (c *Classifier) Classify(msg *model.InboundMessage) model.Result {
	start := time.Now()

	res := model.Result{
		MessageID: msg.ID,
		From:      msg.From,
		Subject:   msg.Subject,
		Date:      msg.Date,
		Kind:      model.KindUnknown,
		PatternID: "none",
	}

	// NFKC-fold once so full-width digits and symbols match half-width rules.
	subject := normalize.Fold(msg.Subject)
	body := normalize.Fold(msg.Body)
	snippet := normalize.Fold(msg.Snippet)
	text := subject + "\n" + body

	best := candidate{}

	for _, pass := range []func(*model.InboundMessage, string, *[]string) candidate{
		c.subscriptionPass,
		c.issuerPass,
	} {
		cand := pass(msg, text, &res.Errors)
		if cand.ok && cand.confidence > best.confidence {
			best = cand
		}
		if best.confidence >= ShortCircuitConfidence {
			break
		}
	}

	if best.confidence < ShortCircuitConfidence {
		cand := c.genericPass(msg, text+"\n"+snippet, &res.Errors)
		if cand.ok && cand.confidence > best.confidence {
			best = cand
		}
	}

	if !best.ok {
		res.Success = false
		res.Confidence = 0
		res.Errors = append(res.Errors, "amount not found")
		res.Elapsed = time.Since(start)
		return res
	}

	res.Success = true
	res.Kind = best.kind
	res.Confidence = best.confidence
	res.PatternID = best.patternID
	res.Payload = best.payload
	if res.Payload.OccurredOn == "" {
		res.Payload.OccurredOn = extractOccurrenceDate(text)
	}
	res.Elapsed = time.Since(start)
	return res
}

type candidate struct {
	payload    *model.Payload
	patternID  string
	kind       model.Kind
	confidence float64
	ok         bool
}

func (c *Classifier) subscriptionPass(msg *model.InboundMessage, text string, errs *[]string) candidate {
	return c.patternPass(c.store.Subscriptions(), model.KindSubscription, msg, text, errs)
}

func (c *Classifier) issuerPass(msg *model.InboundMessage, text string, errs *[]string) candidate {
	return c.patternPass(c.store.Issuers(), model.KindTransaction, msg, text, errs)
}

// patternPass iterates a signature table in table order. A pattern matches
// only when both its sender and subject rules match; the first matching
// pattern that also yields a parseable positive amount wins.
func (c *Classifier) patternPass(table []pattern.CompiledPattern, kind model.Kind, msg *model.InboundMessage, text string, errs *[]string) candidate {
	for i := range table {
		p := &table[i]
		if !p.Matches(msg.From, msg.Subject) {
			continue
		}

		amountStr, ok := p.ExtractAmount(text)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("pattern %s matched but no amount rule hit", p.ID))
			continue
		}

		amount, err := normalize.Amount(amountStr, p.Currency)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("pattern %s: %v", p.ID, err))
			continue
		}

		rawMerchant, found := p.ExtractMerchant(text)
		if !found {
			rawMerchant = p.Service
		}
		display, key := normalize.Merchant(rawMerchant)
		if display == "" {
			display, key = p.Service, strings.ToLower(p.Service)
		}

		return candidate{
			ok:         true,
			kind:       kind,
			confidence: p.Confidence,
			patternID:  p.ID,
			payload: &model.Payload{
				Amount:      amount,
				Currency:    p.Currency,
				Merchant:    display,
				MerchantKey: key,
				RawMerchant: rawMerchant,
				Service:     p.Service,
				Cadence:     p.Cadence,
				Issuer:      p.Issuer,
			},
		}
	}
	return candidate{}
}

// genericPass applies the currency-agnostic amount rules in fixed priority
// order, then the generic merchant heuristics.
func (c *Classifier) genericPass(msg *model.InboundMessage, text string, errs *[]string) candidate {
	for _, rule := range c.store.GenericAmounts() {
		amountStr, matched, ok := rule.Find(text)
		if !ok {
			continue
		}

		currency := rule.Currency
		if currency == "" {
			currency = normalize.Currency(matched)
		}

		amount, err := normalize.Amount(amountStr, currency)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("generic rule %s: %v", rule.Name, err))
			continue
		}

		rawMerchant := c.genericMerchant(msg, text)
		display, key := normalize.Merchant(rawMerchant)

		return candidate{
			ok:         true,
			kind:       model.KindUnknown,
			confidence: GenericConfidence,
			patternID:  "generic",
			payload: &model.Payload{
				Amount:      amount,
				Currency:    currency,
				Merchant:    display,
				MerchantKey: key,
				RawMerchant: rawMerchant,
			},
		}
	}
	return candidate{}
}

// genericMerchant tries labelled fields, then store-name suffixes, then
// sender-domain inference as a last resort.
func (c *Classifier) genericMerchant(msg *model.InboundMessage, text string) string {
	for _, re := range c.store.MerchantLabels() {
		if m := re.FindStringSubmatch(text); len(m) >= 2 {
			if v := strings.TrimSpace(firstLine(m[1])); v != "" {
				return v
			}
		}
	}

	if re := c.store.StoreSuffix(); re != nil {
		if m := re.FindStringSubmatch(text); len(m) >= 2 {
			return m[1]
		}
	}

	if m := senderDomainRe.FindStringSubmatch(msg.From); len(m) >= 2 {
		domain := m[1]
		if i := strings.Index(domain, "."); i > 0 {
			return domain[:i]
		}
		return domain
	}
	return ""
}

func extractOccurrenceDate(text string) string {
	m := occurrenceDateRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return normalize.Date(strings.TrimSpace(m[1]))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
