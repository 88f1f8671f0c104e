// Package common holds the logging, error and retry helpers shared by the
// pipeline packages and the CLI.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Storage errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrStorageBusy    = errors.New("storage busy")
)

// ErrInvalidResolution rejects a duplicate resolution that is not one of the
// four terminal choices.
var ErrInvalidResolution = errors.New("invalid resolution")

// Configuration errors.
var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError carries a short message for the person at the terminal alongside
// the underlying cause, which is only logged.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a message fit for the terminal. err may be nil.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// DisplayMessage returns what to print for err: the user message of the
// outermost UserError in the chain, or the full error text.
func DisplayMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}

// IsRetryable reports whether err is transient: storage contention, a
// deadline, or an error explicitly marked retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStorageBusy) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
