// Package wire implements the Wayland wire protocol: message framing,
// argument encoding, interface descriptors, and the Unix socket
// transport that carries messages and their file descriptors.
package wire

import (
	"deedles.dev/wlengine/internal/bin"
)

const (
	// HeaderSize is the size of a message header in bytes.
	HeaderSize = 8

	// MaxMessageSize is the largest message the 16-bit size field can
	// describe, including the header.
	MaxMessageSize = 0xFFFF
)

// ObjectID is an object argument. Zero is the null object.
type ObjectID uint32

// NewID is a new_id argument. In requests it carries an ID that the
// client has just allocated; in events it carries an ID that the
// server has allocated.
type NewID uint32

// FD is a file descriptor argument. Its value never appears in the
// message body; it travels alongside the message as ancillary data.
type FD int

// Header is the fixed-size prefix of every message.
type Header struct {
	// Sender is the ID of the object the message is addressed to (for
	// requests) or sent from (for events).
	Sender uint32
	Opcode uint16
	// Size is the total size of the message, including the header.
	Size uint16
}

// ReadHeader decodes a header from the start of buf. It reports false
// if buf is shorter than HeaderSize.
func ReadHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}

	so := bin.Value[uint32](buf[4:])
	return Header{
		Sender: bin.Value[uint32](buf),
		Opcode: uint16(so & 0xFFFF),
		Size:   uint16(so >> 16),
	}, true
}

// AppendHeader appends the wire encoding of h to buf.
func AppendHeader(buf []byte, h Header) []byte {
	buf = bin.Append(buf, h.Sender)
	return bin.Append(buf, (uint32(h.Size)<<16)|uint32(h.Opcode))
}

func padding(n uint32) uint32 {
	return (4 - (n % 4)) % 4
}
