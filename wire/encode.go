package wire

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"deedles.dev/wlengine/internal/bin"
)

// MessageBuilder is a message that is under construction.
type MessageBuilder struct {
	sender uint32
	op     uint16
	data   []byte
	fds    []int
	err    error
}

func NewMessage(sender uint32, op uint16) *MessageBuilder {
	return &MessageBuilder{
		sender: sender,
		op:     op,
		data:   make([]byte, HeaderSize, 64),
	}
}

func (mb *MessageBuilder) Sender() uint32 {
	return mb.sender
}

func (mb *MessageBuilder) Op() uint16 {
	return mb.op
}

func (mb *MessageBuilder) WriteInt(v int32) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, v)
}

func (mb *MessageBuilder) WriteUint(v uint32) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, v)
}

func (mb *MessageBuilder) WriteFixed(v Fixed) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, v)
}

func (mb *MessageBuilder) WriteObject(v ObjectID) {
	mb.WriteUint(uint32(v))
}

func (mb *MessageBuilder) WriteNewID(v NewID) {
	mb.WriteUint(uint32(v))
}

// WriteString writes v with its NUL terminator. The empty string is
// written as the null string. Strings that contain a NUL or are not
// valid UTF-8 cannot be represented and make the message fail.
func (mb *MessageBuilder) WriteString(v string) {
	if mb.err != nil {
		return
	}

	if strings.IndexByte(v, 0) >= 0 {
		mb.err = fmt.Errorf("string %q contains an embedded null", v)
		return
	}
	if !utf8.ValidString(v) {
		mb.err = fmt.Errorf("string %q is not valid UTF-8", v)
		return
	}

	if v == "" {
		mb.data = bin.Append(mb.data, uint32(0))
		return
	}

	length := uint32(len(v) + 1)
	mb.data = bin.Append(mb.data, length)
	mb.data = append(mb.data, v...)
	mb.data = append(mb.data, 0)
	mb.pad(length)
}

func (mb *MessageBuilder) WriteArray(v []byte) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, uint32(len(v)))
	mb.data = append(mb.data, v...)
	mb.pad(uint32(len(v)))
}

// WriteFD queues fd to be sent alongside the message. Ownership stays
// with the caller.
func (mb *MessageBuilder) WriteFD(fd FD) {
	if mb.err != nil {
		return
	}

	if fd < 0 {
		mb.err = fmt.Errorf("invalid file descriptor %v", int(fd))
		return
	}
	mb.fds = append(mb.fds, int(fd))
}

func (mb *MessageBuilder) pad(n uint32) {
	for range padding(n) {
		mb.data = append(mb.data, 0)
	}
}

// Bytes finishes the message, returning its wire encoding and the file
// descriptors that must accompany it.
func (mb *MessageBuilder) Bytes() ([]byte, []int, error) {
	if mb.err != nil {
		return nil, nil, mb.err
	}

	if len(mb.data) > MaxMessageSize {
		return nil, nil, fmt.Errorf("message for object %v, opcode %v is %v bytes, exceeding the maximum of %v", mb.sender, mb.op, len(mb.data), MaxMessageSize)
	}

	bin.Put(mb.data, mb.sender)
	bin.Put(mb.data[4:], (uint32(len(mb.data))<<16)|uint32(mb.op))
	return mb.data, mb.fds, nil
}

// Encode builds a message from Go values. Each argument must be one of
// int32, uint32, Fixed, string, ObjectID, NewID, []byte, or FD.
func Encode(sender uint32, op uint16, args ...any) ([]byte, []int, error) {
	mb := NewMessage(sender, op)
	for i, arg := range args {
		switch arg := arg.(type) {
		case int32:
			mb.WriteInt(arg)
		case uint32:
			mb.WriteUint(arg)
		case Fixed:
			mb.WriteFixed(arg)
		case string:
			mb.WriteString(arg)
		case ObjectID:
			mb.WriteObject(arg)
		case NewID:
			mb.WriteNewID(arg)
		case []byte:
			mb.WriteArray(arg)
		case FD:
			mb.WriteFD(arg)
		default:
			return nil, nil, fmt.Errorf("argument %v: unsupported type %T", i, arg)
		}
	}
	return mb.Bytes()
}
