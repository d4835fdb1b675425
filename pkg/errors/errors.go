// Package errors provides structured error types for imagetools.
//
// Every failure raised by the geometry core carries a Code so callers can
// tell a corrupt header (degenerate spacing, unknown space) apart from a
// programming error (missing reference, empty input) without string matching:
//
//	img, err := nrrd.Reconstruct(buf, hdr)
//	if errors.Is(err, errors.ErrCodeDegenerateSpacing) {
//	    // reject the file
//	}
//
// Errors raised while splitting a multi-volume buffer additionally record the
// index of the offending volume (see WithVolume).
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the failure kinds of the geometry core.
const (
	// Header geometry errors
	ErrCodeDimensionality    Code = "DIMENSIONALITY"
	ErrCodeDegenerateSpacing Code = "DEGENERATE_SPACING"
	ErrCodeDegenerateVector  Code = "DEGENERATE_VECTOR"
	ErrCodeUnknownSpace      Code = "UNKNOWN_SPACE"
	ErrCodeInvalidVector     Code = "INVALID_VECTOR"

	// Input validation errors
	ErrCodeEmptyInput       Code = "EMPTY_INPUT"
	ErrCodeMissingReference Code = "MISSING_REFERENCE"
	ErrCodeShapeMismatch    Code = "SHAPE_MISMATCH"
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeMissingMetadata  Code = "MISSING_METADATA"

	// File errors
	ErrCodeIO Code = "IO"
)

// noVolume marks an error that is not attributed to a volume of a stack.
const noVolume = -1

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Field   string // Offending header field, if any
	Volume  int    // Index of the offending volume in a stack, or -1
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %q)", msg, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Volume:  noVolume,
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Volume:  noVolume,
		Cause:   cause,
	}
}

// WithField records the header field that caused the error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithVolume attributes err to the volume at index i of a stacked buffer.
// The code of err is preserved so Is keeps matching the original failure kind.
func WithVolume(err error, i int) error {
	if err == nil {
		return nil
	}
	code := GetCode(err)
	if code == "" {
		code = ErrCodeInvalidInput
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf("volume %d", i),
		Volume:  i,
		Cause:   err,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
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

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// VolumeIndex returns the stack index recorded on err, or -1 when the error
// is not attributed to a volume.
func VolumeIndex(err error) int {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		if e.Volume != noVolume {
			return e.Volume
		}
		err = e.Cause
	}
	return noVolume
}
