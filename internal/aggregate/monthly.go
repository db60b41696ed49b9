// Package aggregate folds refined classification results into per-month,
// per-issuer spending summaries.
package aggregate

import (
	"sort"
	"strings"

	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/pattern"
)

// Category is the fixed reporting category set.
type Category string

// Reporting categories.
const (
	CategoryTransport    Category = "Transport"
	CategoryFood         Category = "Food"
	CategorySubscription Category = "Subscription"
	CategoryOther        Category = "Other"
)

// MonthlySummary is a per-(month, issuer) report row. It is recomputed on
// demand and never persisted independently.
type MonthlySummary struct {
	Categories map[Category]float64
	Month      string
	Issuer     string
	Total      float64
	Count      int
}

// Aggregate folds results into monthly summaries. Only successful results
// contribute. The output is sorted ascending by month, then issuer; an
// empty month (undatable record) is a valid, distinct key.
func Aggregate(results []model.Result, keywords pattern.Keywords) []MonthlySummary {
	type key struct{ month, issuer string }
	buckets := make(map[key]*MonthlySummary)

	for i := range results {
		r := &results[i]
		if !r.Success || r.Payload == nil {
			continue
		}

		k := key{month: r.Month(), issuer: r.Payload.Issuer}
		s, ok := buckets[k]
		if !ok {
			s = &MonthlySummary{
				Month:      k.month,
				Issuer:     k.issuer,
				Categories: make(map[Category]float64),
			}
			buckets[k] = s
		}

		cat := Categorize(r, keywords)
		s.Total += r.Payload.Amount
		s.Categories[cat] += r.Payload.Amount
		s.Count++
	}

	out := make([]MonthlySummary, 0, len(buckets))
	for _, s := range buckets {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Issuer < out[j].Issuer
	})
	return out
}

// Categorize re-derives the reporting category for a result: transport
// keywords are checked before food keywords, and the refined kind decides
// between Subscription and Other when no keyword matches.
func Categorize(r *model.Result, keywords pattern.Keywords) Category {
	merchant := strings.ToLower(r.Payload.MerchantKey)
	if merchant == "" {
		merchant = strings.ToLower(r.Payload.Merchant)
	}

	for _, kw := range keywords.Transport {
		if strings.Contains(merchant, strings.ToLower(kw)) {
			return CategoryTransport
		}
	}
	for _, kw := range keywords.Food {
		if strings.Contains(merchant, strings.ToLower(kw)) {
			return CategoryFood
		}
	}
	if r.Kind == model.KindSubscription {
		return CategorySubscription
	}
	return CategoryOther
}
