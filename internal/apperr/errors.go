// Package apperr defines the error taxonomy shared by the evaluation
// pipeline and its transports. Every failure that crosses a package
// boundary carries a Kind so callers can branch on the class of the
// failure instead of matching message strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindUnknown marks errors that carry no explicit classification.
	KindUnknown Kind = "unknown"
	// KindMissingField marks requests missing a required field or
	// carrying a malformed one.
	KindMissingField Kind = "missing_field"
	// KindFormat marks archives or arrays that cannot be decoded.
	KindFormat Kind = "format"
	// KindSubjectMismatch marks submissions whose subject identifiers do
	// not exactly match the reference set.
	KindSubjectMismatch Kind = "subject_mismatch"
	// KindShapeMismatch marks per-subject arrays whose dimensions differ
	// from the reference.
	KindShapeMismatch Kind = "shape_mismatch"
	// KindComputation marks scoring failures such as a ground truth with
	// no foreground voxels.
	KindComputation Kind = "computation"
	// KindIncomplete marks aggregation over fewer per-subject scores
	// than the reference demands.
	KindIncomplete Kind = "incomplete_scores"
	// KindPersistence marks leaderboard reads or writes that failed
	// after retries.
	KindPersistence Kind = "persistence"
	// KindReferenceLoad marks a reference archive that could not be
	// loaded at startup.
	KindReferenceLoad Kind = "reference_load"
	// KindBusy marks submissions rejected because all evaluation slots
	// are occupied.
	KindBusy Kind = "busy"
	// KindTooLarge marks uploads over the configured byte cap.
	KindTooLarge Kind = "too_large"
	// KindNotFound marks lookups for names absent from the leaderboard.
	KindNotFound Kind = "not_found"
)

// Error is the concrete error type used across the module. Op names the
// operation that failed, Msg describes the failure for humans and Err
// holds the cause when one exists.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error without a cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf builds an error without a cause from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf reports the kind carried by err. Wrapped errors are searched;
// errors without a classification report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsClientFault reports whether the kind describes a fault in the
// submission itself rather than in the engine.
func IsClientFault(kind Kind) bool {
	switch kind {
	case KindMissingField, KindFormat, KindSubjectMismatch, KindShapeMismatch, KindTooLarge:
		return true
	default:
		return false
	}
}
