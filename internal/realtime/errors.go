// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import "errors"

// Error types carried in err:op acknowledgments. Operation failures are
// always converted to a structured acknowledgment before they leave the
// tracker; they never propagate as transport-level errors.
const (
	ErrTypeValidation = "validation"
	ErrTypeConflict   = "conflict"
	ErrTypeNotFound   = "not_found"
	ErrTypeTimeout    = "timeout"
	ErrTypeInternal   = "internal_error"
)

// ProtoError is a protocol-level failure with a defined error type.
// Operation handlers return a ProtoError when the failure should surface
// to the client with a specific taxonomy entry; any other error is
// reported as internal_error.
type ProtoError struct {
	Type    string
	Message string
	wrapped error
}

// NewProtoError creates a ProtoError with the given taxonomy type.
func NewProtoError(errType, message string) *ProtoError {
	return &ProtoError{Type: errType, Message: message}
}

// WrapProtoError attaches a taxonomy type to an underlying error.
func WrapProtoError(errType string, err error) *ProtoError {
	return &ProtoError{Type: errType, Message: err.Error(), wrapped: err}
}

func (e *ProtoError) Error() string { return e.Message }

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *ProtoError) Unwrap() error { return e.wrapped }

// ErrorType classifies err for an acknowledgment: the ProtoError's type
// if it carries one, internal_error otherwise.
func ErrorType(err error) string {
	var pe *ProtoError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrTypeInternal
}
