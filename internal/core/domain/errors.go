package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested parameter was not found
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation indicates a write would break the
	// (subscription, parameter name) uniqueness rule
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrStorageUnavailable indicates the backing store could not be reached or timed out
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrPartialFailure indicates a multi-record write applied some but not all records
	ErrPartialFailure = errors.New("partial failure")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrReplaceInProgress indicates another instance is replacing the same subscription
	ErrReplaceInProgress = errors.New("replace already in progress")

	// ErrUnauthorized indicates the API token is missing or invalid
	ErrUnauthorized = errors.New("unauthorized")
)

// PartialFailureError reports a non-atomic replacement that stopped after
// the subscription's previous set was already removed.
type PartialFailureError struct {
	SubscriptionID uuid.UUID
	Written        int
	Total          int
	Err            error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure replacing parameters for subscription %s: wrote %d of %d: %v",
		e.SubscriptionID, e.Written, e.Total, e.Err)
}

// Unwrap exposes both the partial failure kind and the underlying cause.
func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}
