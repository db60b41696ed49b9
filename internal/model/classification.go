package model

import "time"

// Kind is the classification outcome category for a message.
type Kind string

// Classification kinds.
const (
	KindSubscription Kind = "SUBSCRIPTION"
	KindTransaction  Kind = "TRANSACTION"
	KindUnknown      Kind = "UNKNOWN"
)

// Payload holds the fields extracted from a successfully classified message.
// Amounts are in the currency's conventional unit: whole yen for JPY,
// two-decimal major units for everything else.
type Payload struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Merchant    string  `json:"merchant"`
	MerchantKey string  `json:"merchant_key"`
	RawMerchant string  `json:"raw_merchant,omitempty"`
	Service     string  `json:"service,omitempty"`
	Cadence     string  `json:"cadence,omitempty"`
	Issuer      string  `json:"issuer,omitempty"`
	OccurredOn  string  `json:"occurred_on,omitempty"`
}

// Result is the outcome of classifying one InboundMessage.
//
// Invariant: Success implies Payload != nil, Payload.Amount > 0 and
// Payload.Currency != "".
type Result struct {
	Date       time.Time     `json:"date"`
	Payload    *Payload      `json:"payload,omitempty"`
	MessageID  string        `json:"message_id"`
	From       string        `json:"from"`
	Subject    string        `json:"subject"`
	PatternID  string        `json:"pattern_id"`
	Kind       Kind          `json:"kind"`
	Errors     []string      `json:"errors,omitempty"`
	Confidence float64       `json:"confidence"`
	Elapsed    time.Duration `json:"elapsed"`
	Success    bool          `json:"success"`
}

// Month returns the YYYY-MM bucket for this result: the message timestamp
// when present, otherwise the extracted occurrence date. Returns "" when
// neither yields a usable date.
func (r *Result) Month() string {
	if !r.Date.IsZero() {
		return r.Date.Format("2006-01")
	}
	if r.Payload != nil && len(r.Payload.OccurredOn) >= 7 {
		return r.Payload.OccurredOn[:7]
	}
	return ""
}
