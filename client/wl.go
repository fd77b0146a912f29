// Package wl is a client-side implementation of the Wayland protocol.
//
// A Connection owns the socket to the compositor and the table of
// protocol objects. Requests are written to the socket as soon as they
// are made. Events are read and dispatched to handlers only when the
// caller asks for it, through Dispatch, FlushEvents, or Roundtrip, so
// that event handlers always run on a goroutine the caller controls.
package wl

import (
	"errors"
	"fmt"

	"deedles.dev/wlengine/internal/objstore"
	"deedles.dev/wlengine/wire"
)

// Version is the version of this client library.
const Version = "0.1.0"

var (
	// ErrConnectionFailed is returned by Connect when the compositor
	// socket cannot be reached. The underlying transport error is
	// wrapped along with it.
	ErrConnectionFailed = errors.New("connection failed")

	ErrConnectionClosed = wire.ErrConnectionClosed
	ErrBrokenPipe       = wire.ErrBrokenPipe
	ErrMalformedMessage = wire.ErrMalformedMessage
	ErrTimeout          = wire.ErrTimeout

	// ErrUnknownObject is returned when a handle refers to an object
	// that is not in the object table, either because it was destroyed
	// or because the connection is gone.
	ErrUnknownObject = objstore.ErrUnknownObject

	ErrNotFound          = errors.New("global not found")
	ErrInterfaceMismatch = errors.New("interface mismatch")
	ErrVersionTooHigh    = errors.New("version too high")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// State is the lifecycle state of a Connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProtocolError is a fatal error reported by the compositor through a
// wl_display.error event.
type ProtocolError struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string
}

func (err *ProtocolError) Error() string {
	iface := err.Interface
	if iface == "" {
		iface = "[unknown]"
	}
	return fmt.Sprintf("protocol error on %v#%v, code %v: %v", iface, err.ObjectID, err.Code, err.Message)
}

// UnknownSenderError is returned when an event arrives from an object
// ID that the client has never known about. The message cannot be
// framed safely, so the connection is torn down.
type UnknownSenderError struct {
	Sender uint32
	Opcode uint16
}

func (err UnknownSenderError) Error() string {
	return fmt.Sprintf("unknown sender object ID: %v (opcode %v)", err.Sender, err.Opcode)
}

func (err UnknownSenderError) Is(target error) bool {
	return target == ErrUnknownObject
}
