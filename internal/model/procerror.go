package model

import "time"

// ErrorType is the closed taxonomy of processing failures, grouped by domain.
type ErrorType string

// Network / API errors.
const (
	ErrTypeRateLimit   ErrorType = "RATE_LIMIT"
	ErrTypeAuthFailure ErrorType = "AUTH_FAILURE"
	ErrTypeTimeout     ErrorType = "TIMEOUT"
	ErrTypeUpstreamAPI ErrorType = "UPSTREAM_API_ERROR"
)

// Extraction errors.
const (
	ErrTypeAmountNotFound      ErrorType = "AMOUNT_NOT_FOUND"
	ErrTypeMerchantNotFound    ErrorType = "MERCHANT_NOT_FOUND"
	ErrTypeUnrecognizedFormat  ErrorType = "UNRECOGNIZED_FORMAT"
	ErrTypeConflictingAmounts  ErrorType = "CONFLICTING_AMOUNTS"
	ErrTypePatternMatchFailure ErrorType = "PATTERN_MATCH_FAILURE"
)

// Validation errors.
const (
	ErrTypeMalformedAmount     ErrorType = "MALFORMED_AMOUNT"
	ErrTypeUnsupportedCurrency ErrorType = "UNSUPPORTED_CURRENCY"
	ErrTypeMalformedDate       ErrorType = "MALFORMED_DATE"
	ErrTypeMissingField        ErrorType = "MISSING_REQUIRED_FIELD"
)

// Persistence errors.
const (
	ErrTypeSaveFailed       ErrorType = "SAVE_FAILED"
	ErrTypeConnectionFailed ErrorType = "CONNECTION_FAILED"
	ErrTypeDuplicateRecord  ErrorType = "DUPLICATE_RECORD"
)

// Execution errors.
const (
	ErrTypeExecutionTimeout ErrorType = "EXECUTION_TIMEOUT"
	ErrTypeResourceLimit    ErrorType = "RESOURCE_LIMIT_EXCEEDED"
	ErrTypeUnexpected       ErrorType = "UNEXPECTED"
)

// Severity of a processing error.
type Severity string

// Severity tiers, highest first.
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ProcessingError is a classified, persisted failure record emitted by the
// error manager.
type ProcessingError struct {
	CreatedAt  time.Time
	ID         string
	Type       ErrorType
	Message    string
	EmailID    string
	Subject    string
	Sender     string
	UserID     string
	JobID      string
	Severity   Severity
	Retryable  bool
	RetryCount int
	MaxRetries int
}
