// Package errors provides structured error types for deprank.
//
// This package defines error codes and types that enable:
//   - Consistent failure reasons across the engine, the API and the CLI
//   - Machine-readable codes persisted on failed workflows
//   - A retry classification shared by every network-bound stage
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes are grouped by the pipeline stage that raises them:
//   - FETCH_*: repository fetch failures
//   - PARSE_*: manifest parsing
//   - GRAPH_*, RANK_*: analysis (non-fatal, recorded as warnings)
//   - ALLOCATION_*: budget distribution
//   - SETTLEMENT_*: ledger submission
//
// # Usage
//
//	err := errors.New(errors.ErrCodeFetchNotFound, "repository %s does not exist", repo)
//	if errors.Is(err, errors.ErrCodeFetchNotFound) {
//	    // Permanent failure, do not retry
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetchNetwork, origErr, "clone %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Lookup errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeConflict Code = "CONFLICT"

	// Repository fetch errors
	ErrCodeFetchNotFound Code = "FETCH_NOT_FOUND"
	ErrCodeFetchNetwork  Code = "FETCH_NETWORK"
	ErrCodeFetchAuth     Code = "FETCH_AUTH"

	// Manifest errors
	ErrCodeNoManifest        Code = "PARSE_NO_MANIFEST"
	ErrCodeMalformedManifest Code = "PARSE_MALFORMED"

	// Analysis warnings
	ErrCodeRecursionLimit Code = "GRAPH_RECURSION_LIMIT"
	ErrCodeUnresolved     Code = "GRAPH_UNRESOLVED"
	ErrCodeNonConvergence Code = "RANK_NON_CONVERGENCE"

	// Allocation errors
	ErrCodeBudgetInvalid Code = "ALLOCATION_BUDGET_INVALID"
	ErrCodeNoRecipients  Code = "ALLOCATION_NO_RECIPIENTS"

	// Settlement errors
	ErrCodeSettlementRejected    Code = "SETTLEMENT_REJECTED"
	ErrCodeSettlementTimeout     Code = "SETTLEMENT_TIMEOUT"
	ErrCodeSettlementUnconfirmed Code = "SETTLEMENT_UNCONFIRMED"

	// Airdrop errors
	ErrCodeNotEligible Code = "NOT_ELIGIBLE"

	// Lifecycle
	ErrCodeCancelled Code = "CANCELLED"
	ErrCodeInternal  Code = "INTERNAL_ERROR"
)

// Retryable reports whether failures with this code are transient.
// Every fetch failure except a missing repository is retried, as are
// settlement timeouts and receipts that never reached finality.
func (c Code) Retryable() bool {
	switch c {
	case ErrCodeFetchNetwork, ErrCodeFetchAuth,
		ErrCodeSettlementTimeout, ErrCodeSettlementUnconfirmed:
		return true
	}
	return false
}

// Fatal reports whether a stage error with this code must fail the workflow.
// Non-fatal codes are recorded as warnings and the pipeline continues.
func (c Code) Fatal() bool {
	switch c {
	case ErrCodeMalformedManifest, ErrCodeRecursionLimit, ErrCodeUnresolved, ErrCodeNonConvergence:
		return false
	}
	return true
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable lets retry helpers classify the error by its code.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// CodeOr returns the error's code, or fallback when err carries none.
func CodeOr(err error, fallback Code) Code {
	if c := GetCode(err); c != "" {
		return c
	}
	return fallback
}
