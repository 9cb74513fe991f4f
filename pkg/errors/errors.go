// Package errors provides the typed error kinds used across the LTP
// surrogate pipeline, built on cockroachdb/errors so every error carries a
// stacktrace and can be marshaled as a structured zerolog object.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ConfigurationError reports an invalid configuration value, such as a
// non-positive-definite weight matrix or inconsistent split fractions.
type ConfigurationError struct {
	Param  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ltpsurrogate: invalid configuration for %q: %s (got: %v)", e.Param, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured configuration error to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a ConfigurationError with a stacktrace.
func NewConfigurationError(param, reason string, value interface{}) error {
	err := &ConfigurationError{Param: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// NumericalInstabilityError reports that a numerical operation produced or
// encountered non-finite values, or that a linear solve was too
// ill-conditioned to trust. Projection and constraint code raises this
// instead of silently returning NaN-filled results.
type NumericalInstabilityError struct {
	Op     string
	Values []float64
	Detail string
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	if e.Detail != "" {
		return fmt.Sprintf("ltpsurrogate: numerical instability in %s: %s. Values: [%s]", e.Op, e.Detail, valStr)
	}
	return fmt.Sprintf("ltpsurrogate: numerical instability in %s. Values: [%s]", e.Op, valStr)
}

// MarshalZerologObject adds the structured instability report to a zerolog event.
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Floats64("values", e.Values).
		Str("detail", e.Detail).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stacktrace.
func NewNumericalInstabilityError(op string, values []float64, detail string) error {
	err := &NumericalInstabilityError{Op: op, Values: values, Detail: detail}
	return errors.WithStack(err)
}

// DataShapeError reports mismatched dimensionality between what a component
// expects (e.g. the 17 physical outputs) and what it was given.
type DataShapeError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows/samples, 1 for columns/features
}

func (e *DataShapeError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "samples"
	}
	return fmt.Sprintf("ltpsurrogate: %s: shape mismatch on axis %d (%s): expected %d, got %d",
		e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured shape error to a zerolog event.
func (e *DataShapeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DataShapeError")
}

// NewDataShapeError creates a DataShapeError with a stacktrace.
func NewDataShapeError(op string, expected, got, axis int) error {
	err := &DataShapeError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// MissingArtifactError reports an absent file artifact (checkpoint, dataset,
// cached architecture list). Hint carries the actionable remedy shown to the
// user, e.g. "set retrain: true or supply a checkpoint directory".
type MissingArtifactError struct {
	Path string
	Hint string
}

func (e *MissingArtifactError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("ltpsurrogate: missing artifact %q: %s", e.Path, e.Hint)
	}
	return fmt.Sprintf("ltpsurrogate: missing artifact %q", e.Path)
}

// MarshalZerologObject adds the structured artifact error to a zerolog event.
func (e *MissingArtifactError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("hint", e.Hint).
		Str("type", "MissingArtifactError")
}

// NewMissingArtifactError creates a MissingArtifactError with a stacktrace.
func NewMissingArtifactError(path, hint string) error {
	err := &MissingArtifactError{Path: path, Hint: hint}
	return errors.WithStack(err)
}

// NotFittedError is returned when a Transform or Predict style method is
// called on a component that has not been fitted yet.
type NotFittedError struct {
	Component string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("ltpsurrogate: %s: not fitted yet. Call Fit() before %s()", e.Component, e.Method)
}

// MarshalZerologObject adds the structured fitted-state error to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("component", e.Component).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stacktrace.
func NewNotFittedError(component, method string) error {
	err := &NotFittedError{Component: component, Method: method}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an existing error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an existing error with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stacktrace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stacktrace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stacktrace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

var (
	// ErrEmptyData is returned when an operation receives no data.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a matrix factorization fails outright.
	ErrSingularMatrix = New("singular matrix")
)
