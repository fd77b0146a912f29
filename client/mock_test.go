package wl

import (
	"io"
	"sync"
	"testing"
	"time"

	"deedles.dev/wlengine/internal/bin"
	"deedles.dev/wlengine/wire"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

// mockTransport is an in-memory Transport. Chunks pushed to it are
// returned by Receive one at a time. With auto set, it answers
// wl_display.sync and wl_display.get_registry the way a compositor
// would.
type mockTransport struct {
	t    *testing.T
	wake chan struct{}

	mu       sync.Mutex
	sends    [][]byte
	sendFDs  [][]int
	pending  [][]byte
	closed   bool
	deadline time.Time

	auto    bool
	globals []Global
	serial  uint32

	// onSend, if set, runs after each successful write, outside of the
	// mock's lock.
	onSend func()
}

func newMock(t *testing.T, auto bool, globals ...Global) *mockTransport {
	return &mockTransport{
		t:       t,
		wake:    make(chan struct{}, 1),
		auto:    auto,
		globals: globals,
	}
}

// newMockConnection returns a Connection that logs nowhere.
func newMockConnection(t *testing.T, auto bool, globals ...Global) (*Connection, *mockTransport) {
	m := newMock(t, auto, globals...)
	c := NewConnection(m, WithLogger(log.New(io.Discard)))
	t.Cleanup(func() { c.Disconnect() })
	return c, m
}

func (m *mockTransport) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func encode(t *testing.T, sender uint32, op uint16, args ...any) []byte {
	t.Helper()
	data, _, err := wire.Encode(sender, op, args...)
	require.NoError(t, err)
	return data
}

// push queues events for the client to receive in a single read.
func (m *mockTransport) push(chunks ...[]byte) {
	var data []byte
	for _, c := range chunks {
		data = append(data, c...)
	}

	m.mu.Lock()
	m.pending = append(m.pending, data)
	m.mu.Unlock()
	m.signal()
}

// hangup makes the peer look closed.
func (m *mockTransport) hangup() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mockTransport) Send(data []byte, fds []int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return wire.ErrBrokenPipe
	}
	m.sends = append(m.sends, data)
	m.sendFDs = append(m.sendFDs, fds)

	if m.auto {
		m.answerLocked(data)
	}
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (m *mockTransport) setOnSend(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = f
}

// lastArgs decodes the messages of the most recent write, all of which
// must be requests of iface.
func (m *mockTransport) lastArgs(iface *wire.Interface) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.sends[len(m.sends)-1]
	var all [][]any
	for len(data) > 0 {
		h, body, n, err := wire.Split(data)
		require.NoError(m.t, err)
		method, err := iface.Request(h.Opcode)
		require.NoError(m.t, err)
		args, err := wire.DecodeArgs(h, method.Args, body, nil)
		require.NoError(m.t, err)
		all = append(all, args)
		data = data[n:]
	}
	return all
}

func (m *mockTransport) answerLocked(data []byte) {
	var reply []byte
	for len(data) > 0 {
		h, body, n, err := wire.Split(data)
		if (err != nil) || (n == 0) {
			m.t.Errorf("client sent malformed data: %v", err)
			return
		}
		data = data[n:]
		if h.Sender != 1 {
			continue
		}

		id := bin.Value[uint32](body)
		switch h.Opcode {
		case 0:
			m.serial++
			reply = append(reply, encode(m.t, id, 0, m.serial)...)
			reply = append(reply, encode(m.t, 1, 1, id)...)
		case 1:
			for _, g := range m.globals {
				reply = append(reply, encode(m.t, id, 0, g.Name, g.Interface, g.Version)...)
			}
		}
	}

	if len(reply) > 0 {
		m.pending = append(m.pending, reply)
		m.signal()
	}
}

func (m *mockTransport) Receive(block bool) ([]byte, []int, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, nil, wire.ErrConnectionClosed
		}
		if len(m.pending) > 0 {
			data := m.pending[0]
			m.pending = m.pending[1:]
			m.mu.Unlock()
			return data, nil, nil
		}
		deadline := m.deadline
		m.mu.Unlock()

		if !block {
			return nil, nil, nil
		}

		var timeout <-chan time.Time
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return nil, nil, wire.ErrTimeout
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case <-m.wake:
		case <-timeout:
			return nil, nil, wire.ErrTimeout
		}
	}
}

func (m *mockTransport) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	m.deadline = t
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *mockTransport) Fd() (int, error) {
	return 3, nil
}

func (m *mockTransport) Close() error {
	m.hangup()
	return nil
}

// sent returns the number of writes made so far.
func (m *mockTransport) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

// last returns the headers of the messages in the most recent write.
func (m *mockTransport) last() []wire.Header {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.sends[len(m.sends)-1]
	var headers []wire.Header
	for len(data) > 0 {
		h, _, n, err := wire.Split(data)
		if (err != nil) || (n == 0) {
			m.t.Fatalf("client sent malformed data: %v", err)
		}
		headers = append(headers, h)
		data = data[n:]
	}
	return headers
}
