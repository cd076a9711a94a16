package session

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled is returned by [Controller.Connect] when Disconnect was
	// called before the connection was established.
	ErrCanceled = errors.New("session: connect canceled")

	// ErrBusy is returned by [Controller.Connect] while a connection is
	// already being established or is established.
	ErrBusy = errors.New("session: already connecting or connected")
)

// Kind classifies a session failure.
type Kind int

const (
	// KindUnknown is a failure that fits no other kind.
	KindUnknown Kind = iota
	// KindPermission means microphone access was denied.
	KindPermission
	// KindDevice means an audio device was missing or failed to open.
	KindDevice
	// KindConnection means the remote session failed to open or failed
	// while streaming.
	KindConnection
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindDevice:
		return "device"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error is a categorised session failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindPermission:
		return "Microphone access was denied."
	case KindDevice:
		return "No audio device is available."
	case KindConnection:
		return "Connection error occurred. Please try again."
	default:
		return "Failed to access microphone or connect to AI service."
	}
}
