// Package faults is the error manager: it classifies processing failures
// against a closed taxonomy, decides retryability, centralizes retry with
// backoff, and aggregates error statistics across runs.
package faults

import "github.com/mizuno-h/cardwatch/internal/model"

// severityByType is the fixed severity mapping applied when a logged error
// does not carry one.
var severityByType = map[model.ErrorType]model.Severity{
	// Network / API.
	model.ErrTypeRateLimit:   model.SeverityHigh,
	model.ErrTypeAuthFailure: model.SeverityCritical,
	model.ErrTypeTimeout:     model.SeverityMedium,
	model.ErrTypeUpstreamAPI: model.SeverityHigh,

	// Extraction misses are routine; logged for pattern-coverage work.
	model.ErrTypeAmountNotFound:      model.SeverityLow,
	model.ErrTypeMerchantNotFound:    model.SeverityLow,
	model.ErrTypeUnrecognizedFormat:  model.SeverityLow,
	model.ErrTypeConflictingAmounts:  model.SeverityMedium,
	model.ErrTypePatternMatchFailure: model.SeverityLow,

	// Validation: bad input data.
	model.ErrTypeMalformedAmount:     model.SeverityLow,
	model.ErrTypeUnsupportedCurrency: model.SeverityLow,
	model.ErrTypeMalformedDate:       model.SeverityLow,
	model.ErrTypeMissingField:        model.SeverityLow,

	// Persistence.
	model.ErrTypeSaveFailed:       model.SeverityHigh,
	model.ErrTypeConnectionFailed: model.SeverityCritical,
	model.ErrTypeDuplicateRecord:  model.SeverityLow,

	// Execution.
	model.ErrTypeExecutionTimeout: model.SeverityMedium,
	model.ErrTypeResourceLimit:    model.SeverityHigh,
	model.ErrTypeUnexpected:       model.SeverityHigh,
}

// retryableByType is the fixed retryability mapping. Duplicates are no-ops
// rather than failures, so they are never retried.
var retryableByType = map[model.ErrorType]bool{
	model.ErrTypeRateLimit:   true,
	model.ErrTypeAuthFailure: false,
	model.ErrTypeTimeout:     true,
	model.ErrTypeUpstreamAPI: true,

	model.ErrTypeAmountNotFound:      false,
	model.ErrTypeMerchantNotFound:    false,
	model.ErrTypeUnrecognizedFormat:  false,
	model.ErrTypeConflictingAmounts:  false,
	model.ErrTypePatternMatchFailure: false,

	model.ErrTypeMalformedAmount:     false,
	model.ErrTypeUnsupportedCurrency: false,
	model.ErrTypeMalformedDate:       false,
	model.ErrTypeMissingField:        false,

	model.ErrTypeSaveFailed:       false,
	model.ErrTypeConnectionFailed: true,
	model.ErrTypeDuplicateRecord:  false,

	// Execution timeouts resume via continuation scheduling.
	model.ErrTypeExecutionTimeout: true,
	model.ErrTypeResourceLimit:    false,
	model.ErrTypeUnexpected:       false,
}

// SeverityFor returns the fixed severity for an error type.
func SeverityFor(t model.ErrorType) model.Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return model.SeverityMedium
}

// RetryableFor returns the fixed retryability for an error type.
func RetryableFor(t model.ErrorType) bool {
	return retryableByType[t]
}
