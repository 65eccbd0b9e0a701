package server

import (
	"fmt"
)

// Wire level error codes. These are sent to clients inside error envelopes,
// so renumbering them is a breaking protocol change.
const (
	ErrorCodeAuthentication int = iota
	ErrorCodeAuthorization
	ErrorCodeInvalidTransition
	ErrorCodeMatchNotFound
	ErrorCodeRoomNotFound
	ErrorCodeBadRequest
	ErrorCodeUnrecognizedPayload
	ErrorCodeInternal
)

// SocketError is the command level failure type. Everything carrying this
// type is recoverable: the offending command gets an error envelope and the
// connection stays open. Authentication failures never reach this type, they
// terminate the connection before a session exists.
type SocketError struct {
	Code int
	Message string
	// CurrentStatus is only set for invalid transition errors so the client
	// can resync without an extra round trip.
	CurrentStatus string
}

func (e *SocketError) Error() string {
	return e.Message
}

func errAuthorization(message string) *SocketError {
	return &SocketError{Code: ErrorCodeAuthorization, Message: message}
}

func errMatchNotFound(matchID string) *SocketError {
	return &SocketError{Code: ErrorCodeMatchNotFound, Message: "Match not found: " + matchID}
}

func errRoomNotFound(matchID string) *SocketError {
	return &SocketError{Code: ErrorCodeRoomNotFound, Message: "Room not found: " + matchID}
}

func errBadRequest(message string) *SocketError {
	return &SocketError{Code: ErrorCodeBadRequest, Message: message}
}

func errInvalidTransition(from MatchStatus, to MatchStatus) *SocketError {
	return &SocketError{
		Code: ErrorCodeInvalidTransition,
		Message: fmt.Sprintf("Invalid status transition from %s to %s", from, to),
		CurrentStatus: string(from),
	}
}

// asSocketError maps any error to something we can put on the wire. Unknown
// errors are masked, the real cause stays in the server log.
func asSocketError(err error) *SocketError {
	if sErr, ok := err.(*SocketError); ok {
		return sErr
	}
	return &SocketError{Code: ErrorCodeInternal, Message: "Internal server error"}
}
