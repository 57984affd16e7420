/*
errors.go - Centralized error types for the recognition engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Workflows return *Error values tagged with a Kind; the HTTP layer maps
  the Kind to a status code without knowing the individual failures.

ERROR CATEGORIES:
  1. Validation - malformed or out-of-range input (400)
  2. Forbidden - the actor may not perform the action (403)
  3. NotFound - referenced document missing in the tenant (404)
  4. Conflict - state transition no longer valid (409)
  5. Exhausted - balance, stock or allowance ran out (400)

USAGE:

    if engine.KindOf(err) == engine.KindForbidden { ... }
    if errors.Is(err, engine.ErrInsufficientBalance) { ... }

SEE ALSO:
  - ledger.go: Returns InsufficientBalanceError
  - atomic.go: Returns ErrTxUnsupported handling
  - api/errors.go: Maps kinds to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient points balance")

	// ErrOutOfStock is returned when a reward has no remaining availability.
	ErrOutOfStock = errors.New("reward out of stock")

	// ErrAllowanceExceeded is returned when a manager's monthly allowance
	// cannot cover an award.
	ErrAllowanceExceeded = errors.New("monthly allowance exceeded")

	// ErrTxUnsupported is returned by TxStore.WithTx when the backing
	// deployment cannot run multi-document transactions.
	ErrTxUnsupported = errors.New("transactions not supported")

	// ErrMalformedCursor is returned when a feed cursor cannot be decoded.
	ErrMalformedCursor = errors.New("malformed cursor")

	// ErrInvalidRole is returned for role strings outside the enum.
	ErrInvalidRole = errors.New("invalid role")
)

// =============================================================================
// KINDS
// =============================================================================

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindConflict
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExhausted:
		return "exhausted"
	}
	return "internal"
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Error is a classified workflow failure. Code is a stable machine-readable
// identifier, Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(code, message string) error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Forbidden(code, message string) error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func NotFound(code, message string) error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Exhausted wraps one of the exhaustion sentinels so errors.Is keeps working.
func Exhausted(sentinel error, code, message string) error {
	return &Error{Kind: KindExhausted, Code: code, Message: message, Err: sentinel}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    string
	Available int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrAllowanceExceeded):
		return KindExhausted
	case errors.Is(err, ErrMalformedCursor), errors.Is(err, ErrInvalidRole):
		return KindValidation
	}
	return KindInternal
}

// CodeOf returns the stable error code, or "" for unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return "insufficient_points"
	}
	return ""
}

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return KindOf(err) != KindInternal
}
