package faults

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/service"
)

// Stats is a read-side aggregation over logged errors. It has no effect on
// control flow.
type Stats struct {
	ByType     map[model.ErrorType]int
	BySeverity map[model.Severity]int
	Trend      []TrendBucket
	Patterns   []PatternCount
	Total      int
}

// PatternCount is one recurring error pattern with its occurrence count.
type PatternCount struct {
	Pattern string
	Count   int
}

// TrendBucket counts errors in one hour-aligned window.
type TrendBucket struct {
	Hour  time.Time
	Count int
}

var digitRunRe = regexp.MustCompile(`[0-9][0-9,.]*`)

// Statistics aggregates the logged errors matching filter: totals by type
// and severity, the top-N recurring message patterns, and hourly trend
// buckets.
func (m *Manager) Statistics(ctx context.Context, filter service.ErrorFilter, topN int) (*Stats, error) {
	errs, err := m.store.ProcessingErrors(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByType:     make(map[model.ErrorType]int),
		BySeverity: make(map[model.Severity]int),
		Total:      len(errs),
	}

	patterns := make(map[string]int)
	hours := make(map[time.Time]int)
	for i := range errs {
		e := &errs[i]
		stats.ByType[e.Type]++
		stats.BySeverity[e.Severity]++
		patterns[normalizePattern(e.Message)]++
		hours[e.CreatedAt.Truncate(time.Hour)]++
	}

	for p, c := range patterns {
		stats.Patterns = append(stats.Patterns, PatternCount{Pattern: p, Count: c})
	}
	sort.Slice(stats.Patterns, func(i, j int) bool {
		if stats.Patterns[i].Count != stats.Patterns[j].Count {
			return stats.Patterns[i].Count > stats.Patterns[j].Count
		}
		return stats.Patterns[i].Pattern < stats.Patterns[j].Pattern
	})
	if topN > 0 && len(stats.Patterns) > topN {
		stats.Patterns = stats.Patterns[:topN]
	}

	for h, c := range hours {
		stats.Trend = append(stats.Trend, TrendBucket{Hour: h, Count: c})
	}
	sort.Slice(stats.Trend, func(i, j int) bool {
		return stats.Trend[i].Hour.Before(stats.Trend[j].Hour)
	})

	return stats, nil
}

// normalizePattern collapses numeric runs so messages differing only in
// amounts or identifiers group into one pattern.
func normalizePattern(msg string) string {
	return digitRunRe.ReplaceAllString(msg, "N")
}
