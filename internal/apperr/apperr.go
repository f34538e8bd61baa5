// Package apperr defines the error taxonomy shared by the decision and payment
// pipeline. Rejected claims are not errors; only structural problems,
// invariant violations and unavailable collaborators are.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation              Kind = "validation_error"
	KindDuplicateDecision       Kind = "duplicate_decision"
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
	KindInconsistentState       Kind = "inconsistent_state"
	KindNotFound                Kind = "not_found"
)

// Error is an application error with a kind and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input. Never retried.
func Validation(message string, details ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: firstOf(details)}
}

// Duplicate reports that the one-approval-per-year invariant would be violated.
func Duplicate(message string, details ...string) *Error {
	return &Error{Kind: KindDuplicateDecision, Message: message, Details: firstOf(details)}
}

// Unavailable wraps a failed or timed out collaborator call. Retryable.
func Unavailable(collaborator string, err error) *Error {
	return &Error{Kind: KindCollaboratorUnavailable, Message: collaborator + " unavailable", Err: err}
}

// Inconsistent reports a broken internal invariant. The operation must abort
// without committing anything.
func Inconsistent(message string, details ...string) *Error {
	return &Error{Kind: KindInconsistentState, Message: message, Details: firstOf(details)}
}

// NotFound reports a missing record.
func NotFound(message string, details ...string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Details: firstOf(details)}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func IsDuplicate(err error) bool { return KindOf(err) == KindDuplicateDecision }

func IsUnavailable(err error) bool { return KindOf(err) == KindCollaboratorUnavailable }

func IsInconsistent(err error) bool { return KindOf(err) == KindInconsistentState }

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsRetryable reports whether resubmitting the same request may succeed.
// Validation and duplicate errors are permanent; anything unclassified is
// treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindDuplicateDecision, KindInconsistentState, KindNotFound:
		return false
	case KindCollaboratorUnavailable:
		return true
	default:
		return true
	}
}

func firstOf(details []string) string {
	if len(details) > 0 {
		return details[0]
	}
	return ""
}
