package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a single constraint violation on a record field.
// Validation accumulates every violation rather than failing fast, so a
// producer sees the complete defect list in one round trip.
type ValidationError struct {
	Field       string `json:"field"`
	Constraint  string `json:"constraint"`
	ActualValue string `json:"actual_value,omitempty"`
}

func (e ValidationError) Error() string {
	if e.ActualValue == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Constraint)
	}
	return fmt.Sprintf("%s: %s (got %s)", e.Field, e.Constraint, e.ActualValue)
}

// GeometryMismatchError reports a geometry kind that does not match the shape
// of its coordinates, or coordinates that cannot form the declared kind.
type GeometryMismatchError struct {
	Kind   GeometryKind
	Reason string
}

func (e *GeometryMismatchError) Error() string {
	return fmt.Sprintf("geometry %s: %s", e.Kind, e.Reason)
}

// NewGeometryMismatchError builds a GeometryMismatchError.
func NewGeometryMismatchError(kind GeometryKind, format string, args ...any) *GeometryMismatchError {
	return &GeometryMismatchError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// MalformedQueryError reports invalid query input (inverted bbox, non-positive
// radius, reversed time range). It is returned before any scan begins.
type MalformedQueryError struct {
	Param  string
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query: %s: %s", e.Param, e.Reason)
}

// NewMalformedQueryError builds a MalformedQueryError.
func NewMalformedQueryError(param, reason string) *MalformedQueryError {
	return &MalformedQueryError{Param: param, Reason: reason}
}

// TimeoutError reports a caller deadline that elapsed mid-query. The caller
// never receives a partial result alongside it.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: deadline exceeded", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NewTimeoutError wraps a context error as a TimeoutError for the given operation.
func NewTimeoutError(op string, err error) *TimeoutError {
	return &TimeoutError{Op: op, Err: err}
}

// DecimalParseError reports a malformed numeric string at the ingest boundary.
type DecimalParseError struct {
	Input string
	Err   error
}

func (e *DecimalParseError) Error() string {
	return fmt.Sprintf("parse decimal %q: %v", e.Input, e.Err)
}

func (e *DecimalParseError) Unwrap() error { return e.Err }

// UnavailableError is the opaque wrapper for persistence-layer failures.
// Callers retry it; the underlying cause is deliberately not part of the
// contract.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// NewUnavailableError wraps a storage failure.
func NewUnavailableError(err error) *UnavailableError {
	return &UnavailableError{Err: err}
}

// IsUnavailable reports whether err wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsTimeout reports whether err wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsMalformedQuery reports whether err wraps a MalformedQueryError.
func IsMalformedQuery(err error) bool {
	var me *MalformedQueryError
	return errors.As(err, &me)
}
