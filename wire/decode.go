package wire

import (
	"bytes"
	"unicode/utf8"

	"deedles.dev/wlengine/internal/bin"
)

// Message is a decoded message.
type Message struct {
	Header
	Method *Method

	// Args holds one Go value per argument of Method, in order.
	Args []any
}

// Split frames the first message in buf. If buf does not yet hold a
// complete message, n is zero and err is nil. Otherwise n is the size
// of the message and body is its argument data.
func Split(buf []byte) (h Header, body []byte, n int, err error) {
	h, ok := ReadHeader(buf)
	if !ok {
		return h, nil, 0, nil
	}

	if h.Size < HeaderSize {
		return h, nil, 0, MalformedMessageError{Sender: h.Sender, Opcode: h.Opcode, Reason: "declared size is smaller than the header"}
	}
	if h.Size%4 != 0 {
		return h, nil, 0, MalformedMessageError{Sender: h.Sender, Opcode: h.Opcode, Reason: "declared size is not a multiple of 4"}
	}
	if len(buf) < int(h.Size) {
		return h, nil, 0, nil
	}

	return h, buf[HeaderSize:h.Size], int(h.Size), nil
}

type argReader struct {
	h    Header
	data []byte
	fds  FDSource
}

func (r *argReader) fail(reason string) error {
	return MalformedMessageError{Sender: r.h.Sender, Opcode: r.h.Opcode, Reason: reason}
}

func (r *argReader) word() (uint32, error) {
	if len(r.data) < 4 {
		return 0, r.fail("argument runs past the end of the message")
	}
	v := bin.Value[uint32](r.data)
	r.data = r.data[4:]
	return v, nil
}

func (r *argReader) bytes() ([]byte, uint32, error) {
	length, err := r.word()
	if err != nil {
		return nil, 0, err
	}

	total := uint64(length) + uint64(padding(length))
	if uint64(len(r.data)) < total {
		return nil, 0, r.fail("length prefix runs past the end of the message")
	}
	v := r.data[:length]
	r.data = r.data[total:]
	return v, length, nil
}

func (r *argReader) string() (string, error) {
	v, length, err := r.bytes()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	if v[length-1] != 0 {
		return "", r.fail("string is not null-terminated")
	}
	v = v[:length-1]
	if bytes.IndexByte(v, 0) >= 0 {
		return "", r.fail("string contains an embedded null")
	}
	if !utf8.Valid(v) {
		return "", r.fail("string is not valid UTF-8")
	}
	return string(v), nil
}

// DecodeArgs decodes body according to args. File descriptors are
// taken from fds, one per fd argument. The body must be consumed
// exactly.
func DecodeArgs(h Header, args []Arg, body []byte, fds FDSource) ([]any, error) {
	r := argReader{h: h, data: body, fds: fds}
	vals := make([]any, 0, len(args))
	for _, arg := range args {
		switch arg.Type {
		case ArgInt:
			v, err := r.word()
			if err != nil {
				return nil, err
			}
			vals = append(vals, int32(v))

		case ArgUint:
			v, err := r.word()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)

		case ArgFixed:
			v, err := r.word()
			if err != nil {
				return nil, err
			}
			vals = append(vals, Fixed(v))

		case ArgObject:
			v, err := r.word()
			if err != nil {
				return nil, err
			}
			vals = append(vals, ObjectID(v))

		case ArgNewID:
			v, err := r.word()
			if err != nil {
				return nil, err
			}
			if v == 0 {
				return nil, r.fail("null new_id")
			}
			vals = append(vals, NewID(v))

		case ArgString:
			v, err := r.string()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)

		case ArgArray:
			v, _, err := r.bytes()
			if err != nil {
				return nil, err
			}
			vals = append(vals, bytes.Clone(v))

		case ArgFD:
			if r.fds == nil {
				return nil, r.fail("no file descriptor available")
			}
			fd, ok := r.fds.PopFD()
			if !ok {
				return nil, r.fail("no file descriptor available")
			}
			vals = append(vals, FD(fd))

		default:
			return nil, r.fail("unknown argument type " + arg.Type.String())
		}
	}

	if len(r.data) != 0 {
		return nil, r.fail("declared length disagrees with arguments")
	}
	return vals, nil
}

// MethodLookup returns the method an incoming message refers to.
type MethodLookup func(sender uint32, op uint16) (*Method, error)

// Decode frames and decodes the first message in buf. If buf holds only
// part of a message, it returns a nil Message and n == 0 without
// touching fds.
func Decode(buf []byte, lookup MethodLookup, fds FDSource) (*Message, int, error) {
	h, body, n, err := Split(buf)
	if (err != nil) || (n == 0) {
		return nil, 0, err
	}

	m, err := lookup(h.Sender, h.Opcode)
	if err != nil {
		return nil, 0, err
	}

	args, err := DecodeArgs(h, m.Args, body, fds)
	if err != nil {
		return nil, 0, err
	}

	return &Message{Header: h, Method: m, Args: args}, n, nil
}
