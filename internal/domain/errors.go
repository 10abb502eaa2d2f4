package domain

import (
	"errors"
	"fmt"
)

// ErrSchedulingConflict marks a fire attempt skipped because another attempt
// for the same (user, kind) pair is still in flight. Not surfaced to users.
var ErrSchedulingConflict = errors.New("fire attempt already in flight")

// ErrUserNotFound is returned by the user store for unknown user ids.
var ErrUserNotFound = errors.New("user not found")

// ConfigError marks a missing or invalid user profile. Fatal for that user's
// tick; the user is skipped, others are unaffected.
type ConfigError struct {
	UserID string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config for user %q: %v", e.UserID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError marks a rejected token or signature. Never retried. Forbidden
// distinguishes a failed credential check (403) from absent or malformed
// credentials (401).
type AuthError struct {
	Reason    string
	Forbidden bool
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// DataFetchError marks a ledger API failure. Retryable within bounded attempts.
type DataFetchError struct {
	Op  string
	Err error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// WorkflowError marks an AI workflow failure. Retryable within bounded attempts.
type WorkflowError struct {
	Op  string
	Err error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s: %v", e.Op, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// DeliveryError marks a notification delivery failure. Retryable within
// bounded attempts.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
