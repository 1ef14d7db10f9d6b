// Package apperr is the error taxonomy shared by every lifecycle component.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure for callers and for the HTTP layer
type Kind string

const (
	KindInvalidTransition Kind = "invalid_transition"
	KindPolicyViolation   Kind = "policy_violation"
	KindPaymentFailure    Kind = "payment_failure"
	KindNotFound          Kind = "not_found"
	KindInvariantBreach   Kind = "invariant_breach"
	KindValidation        Kind = "validation"
	KindForbidden         Kind = "forbidden"
)

// Policy violation codes
const (
	CodeAlreadyStarted     = "already_started"
	CodeCancellationWindow = "cancellation_window"
	CodeBelowMinimum       = "below_minimum"
	CodeExtensionOpen      = "extension_open"
	CodeCancellationOpen   = "cancellation_open"
)

// Error carries enough context to diagnose a failure without replaying it
type Error struct {
	Kind     Kind   `json:"kind"`
	Code     string `json:"code,omitempty"`
	Entity   string `json:"entity,omitempty"`
	ID       string `json:"id,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Message  string `json:"message,omitempty"`
	Err      error  `json:"-"`
}

// Sentinels for errors.Is. Matching is on Kind, and on Code when the sentinel sets one.
var (
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrPolicyViolation    = &Error{Kind: KindPolicyViolation}
	ErrPaymentFailure     = &Error{Kind: KindPaymentFailure}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvariantBreach    = &Error{Kind: KindInvariantBreach}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrAlreadyStarted     = &Error{Kind: KindPolicyViolation, Code: CodeAlreadyStarted}
	ErrCancellationWindow = &Error{Kind: KindPolicyViolation, Code: CodeCancellationWindow}
	ErrBelowMinimum       = &Error{Kind: KindPolicyViolation, Code: CodeBelowMinimum}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Code != "" {
		b.WriteString(" (" + e.Code + ")")
	}
	if e.Entity != "" {
		b.WriteString(": " + e.Entity)
		if e.ID != "" {
			b.WriteString(" " + e.ID)
		}
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, ": expected %s, got %s", e.Expected, e.Actual)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// InvalidTransition reports a failed compare-and-swap on status
func InvalidTransition(entity, id, expected, actual string) *Error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, ID: id, Expected: expected, Actual: actual}
}

// NotFound reports a missing entity
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

// PolicyViolation reports a business rule rejection that callers must surface verbatim
func PolicyViolation(code, message string) *Error {
	return &Error{Kind: KindPolicyViolation, Code: code, Message: message}
}

// PaymentFailure wraps a processor error after retries were exhausted
func PaymentFailure(op string, err error) *Error {
	return &Error{Kind: KindPaymentFailure, Message: op, Err: err}
}

// InvariantBreach aborts an operation that would corrupt ledger state
func InvariantBreach(entity, id, message string) *Error {
	return &Error{Kind: KindInvariantBreach, Entity: entity, ID: id, Message: message}
}

// Validation rejects malformed input
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Forbidden rejects an identity acting outside its role or ownership
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code the API responds with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidTransition:
		return http.StatusConflict
	case KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case KindPaymentFailure:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
