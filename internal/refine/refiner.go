// Package refine implements the cross-message statistical pass that promotes
// ambiguous classification results to Subscription based on recurrence.
package refine

import (
	"math"
	"strings"

	"github.com/mizuno-h/cardwatch/internal/model"
)

// Promotion thresholds, in yen-scale units of the group's currency. A group
// is promoted when it spans at least MinDistinctMonths distinct months and
// its population standard deviation is at or below the threshold.
const (
	MinDistinctMonths = 2

	defaultFloor    = 100.0
	defaultFraction = 0.15

	// Overseas charges on JCB cards carry FX fees that wobble the amount,
	// so the bound is relaxed for groups flagged with the overseas marker.
	relaxedFloor    = 300.0
	relaxedFraction = 0.20
)

// OverseasMarker is the literal issuers put on overseas/foreign usage lines.
const OverseasMarker = "海外利用"

// RelaxedIssuer is the issuer whose overseas groups get the relaxed bound.
const RelaxedIssuer = "JCB"

type groupKey struct {
	issuer   string
	merchant string
}

// Decision records the refinement outcome for one group. Returned for
// reporting; the promotion itself is applied to the results in place.
type Decision struct {
	Issuer         string
	Merchant       string
	Mean           float64
	StdDev         float64
	Threshold      float64
	DistinctMonths int
	Members        int
	Promoted       bool
}

// Refine regroups successful results by (issuer, normalized merchant) and
// promotes recurring groups to Subscription. Promotion is monotonic: only
// Unknown members are upgraded, nothing is ever demoted, and running the
// pass twice produces no further change.
func Refine(results []model.Result) []Decision {
	groups := make(map[groupKey][]int)
	order := make([]groupKey, 0)

	for i := range results {
		r := &results[i]
		if !r.Success || r.Payload == nil {
			continue
		}
		key := groupKey{issuer: r.Payload.Issuer, merchant: merchantKey(r.Payload)}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	decisions := make([]Decision, 0, len(order))
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}

		amounts := make([]float64, 0, len(members))
		months := make(map[string]struct{})
		overseas := false
		for _, i := range members {
			r := &results[i]
			amounts = append(amounts, r.Payload.Amount)
			if m := r.Month(); m != "" {
				months[m] = struct{}{}
			}
			if strings.Contains(r.Payload.RawMerchant, OverseasMarker) {
				overseas = true
			}
		}

		mean, stddev := meanStdDev(amounts)
		threshold := promotionThreshold(key.issuer, overseas, mean)

		d := Decision{
			Issuer:         key.issuer,
			Merchant:       key.merchant,
			Mean:           mean,
			StdDev:         stddev,
			Threshold:      threshold,
			DistinctMonths: len(months),
			Members:        len(members),
			Promoted:       len(months) >= MinDistinctMonths && stddev <= threshold,
		}
		decisions = append(decisions, d)

		if d.Promoted {
			for _, i := range members {
				if results[i].Kind == model.KindUnknown {
					results[i].Kind = model.KindSubscription
				}
			}
		}
	}
	return decisions
}

func merchantKey(p *model.Payload) string {
	if p.MerchantKey != "" {
		return p.MerchantKey
	}
	return strings.ToLower(p.Merchant)
}

func promotionThreshold(issuer string, overseas bool, mean float64) float64 {
	if issuer == RelaxedIssuer && overseas {
		return math.Max(relaxedFloor, relaxedFraction*mean)
	}
	return math.Max(defaultFloor, defaultFraction*mean)
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
