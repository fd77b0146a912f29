package wl

import "slices"

const bufferRelease = 0

// Buffer is a wl_buffer.
type Buffer struct {
	Object
	st *bufferState
}

type bufferState struct {
	busy      bool
	onRelease []func()
}

func (st *bufferState) listen(ev Event) (func(), error) {
	if ev.Opcode != bufferRelease {
		return nil, nil
	}

	st.busy = false
	handlers := slices.Clone(st.onRelease)
	return func() {
		for _, f := range handlers {
			f()
		}
	}, nil
}

// OnRelease registers f to be called when the compositor no longer
// reads from the buffer.
func (b *Buffer) OnRelease(f func()) {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.st.onRelease = append(b.st.onRelease, f)
}

// Busy reports whether the buffer has been committed to a surface and
// not yet released.
func (b *Buffer) Busy() bool {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.st.busy
}
