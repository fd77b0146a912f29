package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is matched by every framing and argument
	// decoding error.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrConnectionClosed is returned when the peer has closed the
	// socket or the Conn has been closed locally.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBrokenPipe is returned when a write fails because the peer
	// has gone away.
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrTimeout is returned when a read deadline expires.
	ErrTimeout = errors.New("timed out")

	// ErrSocketNotFound is returned by Dial when nothing exists at the
	// socket path.
	ErrSocketNotFound = errors.New("socket not found")

	// ErrConnectionRefused is returned by Dial when the socket exists
	// but nobody is listening on it.
	ErrConnectionRefused = errors.New("connection refused")
)

// MalformedMessageError describes a message that could not be framed
// or decoded.
type MalformedMessageError struct {
	Sender uint32
	Opcode uint16
	Reason string
}

func (err MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message from object %v, opcode %v: %v", err.Sender, err.Opcode, err.Reason)
}

func (err MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

// UnknownOpError is returned when a message carries an opcode that
// the sender's interface does not define.
type UnknownOpError struct {
	Interface string
	Type      string
	Op        uint16
}

func (err UnknownOpError) Error() string {
	return fmt.Sprintf("unknown %v opcode for %v: %v", err.Type, err.Interface, err.Op)
}

func (err UnknownOpError) Is(target error) bool {
	return target == ErrMalformedMessage
}
