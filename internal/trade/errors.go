package trade

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks client-supplied data that failed local validation.
	ErrInvalidRequest = errors.New("invalid trade request")
	// ErrRateUnavailable marks a quote source that was unreachable or lacked the pair.
	ErrRateUnavailable = errors.New("rate unavailable")
	// ErrExecutionFailed marks an executor that could not mint a trade record.
	ErrExecutionFailed = errors.New("trade execution failed")
)

// ValidationError reports the first offending field of a request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// FieldOf extracts the offending field name from err, if any.
func FieldOf(err error) (string, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Field, true
	}
	return "", false
}

// RateUnavailable wraps cause so it matches ErrRateUnavailable.
func RateUnavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRateUnavailable, fmt.Sprintf(format, args...))
}

// ExecutionFailed wraps cause so it matches ErrExecutionFailed.
func ExecutionFailed(cause error) error {
	if cause == nil {
		return ErrExecutionFailed
	}
	return fmt.Errorf("%w: %w", ErrExecutionFailed, cause)
}
