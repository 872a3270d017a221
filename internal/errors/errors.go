package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the credential pool
var (
	// Store errors
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// Per-record errors, folded into batch counters
	ErrExchangeFailure       = errors.New("token exchange failed")
	ErrEnrollmentFailure     = errors.New("enrollment failed")
	ErrIdentityLookupFailure = errors.New("identity lookup failed")
	ErrUnparseableRecord     = errors.New("unparseable record")

	// Batch errors
	ErrBatchInProgress = errors.New("batch already in progress")
	ErrInvalidTarget   = errors.New("invalid target count")

	// Intake errors
	ErrInvalidState = errors.New("invalid state parameter")
	ErrMissingCode  = errors.New("missing authorization code")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps err with a sentinel so both match errors.Is
func Join(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
