package domain

import "errors"

var (
	// ErrIndexOutOfRange is returned when a queue index is invalid at the time of the operation.
	ErrIndexOutOfRange = errors.New("queue index out of range")

	// ErrNoActiveTrack is returned when a control command needs a playing track and there is none.
	ErrNoActiveTrack = errors.New("no active track")

	// ErrNodeUnavailable is returned when the node bound to a session cannot be reached,
	// or when no node could be selected.
	ErrNodeUnavailable = errors.New("node unavailable")

	// ErrSessionTerminated is returned for operations on a disconnected session.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrLoadFailed is returned when a node reports no results or a load error.
	ErrLoadFailed = errors.New("failed to load track")

	// ErrInvalidTransition is returned when a session state change is not allowed.
	ErrInvalidTransition = errors.New("invalid session state transition")
)
