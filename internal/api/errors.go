package api

import (
	"errors"
	"fmt"
)

// Rejection reasons reported to producers.
const (
	ReasonTooShort  = "too_short"
	ReasonTooLong   = "too_long"
	ReasonDuplicate = "duplicate"
)

// ValidationError rejects a capture before it ever enters the queue.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("capture rejected: %s", e.Reason)
	}
	return fmt.Sprintf("capture rejected: %s: %s", e.Reason, e.Detail)
}

// RejectionReason extracts the producer-facing reason from a Submit error,
// or "" when the error is not a validation rejection.
func RejectionReason(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Reason
	}
	return ""
}

// ErrNotFound reports that the referenced queue entry no longer exists (or,
// for retry, is not in the failed state).
var ErrNotFound = errors.New("queue entry not found")
