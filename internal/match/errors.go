package match

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable code attached to engine failures.
type ErrorCode string

const (
	// CodeUnknownClient marks an action from a session with no participant.
	CodeUnknownClient ErrorCode = "UNKNOWN_CLIENT"
	// CodeInvalidParticipant marks an action claiming a seat the resolved
	// participant does not hold.
	CodeInvalidParticipant ErrorCode = "INVALID_PARTICIPANT"
	// CodeInvalidAction marks a payload the rules module rejected as illegal.
	CodeInvalidAction ErrorCode = "INVALID_ACTION"
	// CodeAlreadyEnded marks an action received after the result was set.
	CodeAlreadyEnded ErrorCode = "ALREADY_ENDED"
	// CodeUnavailableSeat marks a join for which no seat assignment is possible.
	CodeUnavailableSeat ErrorCode = "UNAVAILABLE_SEAT"
	// CodeDisposed marks use of an engine after Dispose.
	CodeDisposed ErrorCode = "MATCH_DISPOSED"
)

// Error is a typed engine failure. Rejections never corrupt engine state: a
// rejected transition leaves the roster, move history, and timers untouched.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	// ErrUnknownClient is returned when a session resolves to no participant.
	ErrUnknownClient = &Error{Code: CodeUnknownClient, Message: "unknown client"}
	// ErrInvalidParticipant is returned on a seat mismatch.
	ErrInvalidParticipant = &Error{Code: CodeInvalidParticipant, Message: "invalid participant"}
	// ErrAlreadyEnded is returned once the match result has been set.
	ErrAlreadyEnded = &Error{Code: CodeAlreadyEnded, Message: "already ended"}
	// ErrUnavailableSeat is returned when a join cannot be seated.
	ErrUnavailableSeat = &Error{Code: CodeUnavailableSeat, Message: "unavailable seat"}
	// ErrDisposed is returned when a disposed engine is used again.
	ErrDisposed = &Error{Code: CodeDisposed, Message: "match disposed"}
)

// NewInvalidAction builds an InvalidAction error with a rules-supplied reason.
func NewInvalidAction(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidAction, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the engine error code from err, or "" when err is not an
// engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
