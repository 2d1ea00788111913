package kel

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes why an event was rejected.
type ErrorCode string

const (
	// ErrCodeMalformed indicates a structurally invalid event.
	ErrCodeMalformed ErrorCode = "MALFORMED"

	// ErrCodeOutOfOrder indicates the sequence number is not last+1.
	ErrCodeOutOfOrder ErrorCode = "OUT_OF_ORDER"

	// ErrCodeForkConflict indicates the prior digest does not link to the
	// last accepted event.
	ErrCodeForkConflict ErrorCode = "FORK_CONFLICT"

	// ErrCodeAuthenticationFailure indicates the signatures do not meet
	// the threshold of the authoritative keys.
	ErrCodeAuthenticationFailure ErrorCode = "AUTHENTICATION_FAILURE"

	// ErrCodeCommitmentMismatch indicates rotated keys that do not match
	// the prior next-key commitment.
	ErrCodeCommitmentMismatch ErrorCode = "COMMITMENT_MISMATCH"
)

// ProcessingError is returned when an event is rejected. A rejection never
// changes state.
type ProcessingError struct {
	Code       ErrorCode
	Identifier Identifier
	Sequence   int64
	Message    string
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s (identifier=%s, sequence=%d)", e.Code, e.Message, e.Identifier, e.Sequence)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errorf(code ErrorCode, id Identifier, seq int64, format string, args ...any) *ProcessingError {
	return &ProcessingError{
		Code:       code,
		Identifier: id,
		Sequence:   seq,
		Message:    fmt.Sprintf(format, args...),
	}
}

// AsProcessingError unwraps err to a ProcessingError if it is one.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err is a ProcessingError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	pe, ok := AsProcessingError(err)
	return ok && pe.Code == code
}
