// Package errors provides error handling for semstore.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Marking errors with a sentinel while keeping their own message
//
// Usage:
//
//	// Wrap with context
//	if err := tx.Commit(); err != nil {
//	    return errors.Wrap(err, "commit subject update")
//	}
//
//	// Classify a failure without losing its message
//	return errors.Mark(errors.Newf("unknown kind %d", k), errors.ErrDataCorruption)
//
//	// Check errors
//	if errors.Is(err, errors.ErrTransactionFailure) {
//	    // fatal, the update was rolled back
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for use across semstore.
// Use these with errors.Is() for type-safe error checking.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// Storage taxonomy. Soft errors (DataCorruption, UnsupportedCondition) are
// collected per operation and returned next to results; TransactionFailure
// aborts the operation after rolling back.
var (
	// ErrDataCorruption marks a row or value that cannot be reconstructed
	// or stored. The value is dropped and the surrounding operation continues.
	ErrDataCorruption = New("data corruption")

	// ErrUnsupportedCondition marks a query fragment the compiler could not
	// translate. The fragment degrades to "match all".
	ErrUnsupportedCondition = New("unsupported query condition")

	// ErrIdentityConflict marks an id of 0 used where a valid id is required.
	ErrIdentityConflict = New("identity conflict")

	// ErrTransactionFailure marks a database write failure. Partial writes
	// have been rolled back.
	ErrTransactionFailure = New("transaction failure")
)

// DataCorruption creates a soft error marked as ErrDataCorruption.
func DataCorruption(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrDataCorruption)
}

// UnsupportedCondition creates a soft error marked as ErrUnsupportedCondition.
func UnsupportedCondition(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrUnsupportedCondition)
}

// TransactionFailure wraps a database error and marks it as ErrTransactionFailure.
func TransactionFailure(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrTransactionFailure)
}

// IsDataCorruption checks if an error is or wraps ErrDataCorruption
func IsDataCorruption(err error) bool {
	return err != nil && Is(err, ErrDataCorruption)
}

// IsUnsupportedCondition checks if an error is or wraps ErrUnsupportedCondition
func IsUnsupportedCondition(err error) bool {
	return err != nil && Is(err, ErrUnsupportedCondition)
}

// IsTransactionFailure checks if an error is or wraps ErrTransactionFailure
func IsTransactionFailure(err error) bool {
	return err != nil && Is(err, ErrTransactionFailure)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
