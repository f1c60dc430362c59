package apperror

const (
	// Client errors (4xx)
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimit    = "RATE_LIMITED"

	// Server errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Reported for operator visibility, never returned to an API caller.
	CodePartialBatch = "PARTIAL_BATCH_FAILURE"
)
