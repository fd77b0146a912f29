// Package bin contains utilities for dealing with binary representations.
package bin

import (
	"encoding/binary"
	"io"
)

// Order is the host byte order, which is what the Wayland wire
// protocol uses for every 32-bit word.
var Order = binary.NativeEndian

// Value decodes a 32-bit word from the start of data.
func Value[T ~int32 | ~uint32](data []byte) T {
	return T(Order.Uint32(data))
}

// Append appends the host-order encoding of v to buf.
func Append[T ~int32 | ~uint32](buf []byte, v T) []byte {
	return Order.AppendUint32(buf, uint32(v))
}

// Put encodes v into the first four bytes of buf.
func Put[T ~int32 | ~uint32](buf []byte, v T) {
	Order.PutUint32(buf, uint32(v))
}

func Read[T ~int32 | ~uint32](r io.Reader) (T, error) {
	var data [4]byte
	_, err := io.ReadFull(r, data[:])
	if err != nil {
		return 0, err
	}

	return Value[T](data[:]), nil
}

func Write[T ~int32 | ~uint32](w io.Writer, v T) error {
	var data [4]byte
	Put(data[:], v)
	n, err := w.Write(data[:])
	if (err == nil) && (n < len(data)) {
		return io.ErrShortWrite
	}
	return err
}
