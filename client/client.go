package wl

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"deedles.dev/wlengine/internal/debug"
	"deedles.dev/wlengine/internal/metrics"
	"deedles.dev/wlengine/internal/objstore"
	"deedles.dev/wlengine/protocol"
	"deedles.dev/wlengine/wire"
	"github.com/charmbracelet/log"
)

// Transport carries raw message bytes and file descriptors to and
// from the compositor. *wire.Conn implements it.
type Transport interface {
	Send(data []byte, fds []int) error
	Receive(block bool) ([]byte, []int, error)
	SetReadDeadline(t time.Time) error
	Fd() (int, error)
	Close() error
}

// object is an entry in the object table.
type object struct {
	iface   *wire.Interface
	name    string
	version uint32
	handler Handler

	// listen is the built-in listener of a typed object. It runs with
	// the connection's lock held and may return a function to run after
	// the lock has been released.
	listen func(Event) (func(), error)
}

// Connection is a client connection to a compositor. All of its
// methods are safe for concurrent use, except that Dispatch,
// FlushEvents, and the Roundtrip methods must not be called from an
// event handler.
type Connection struct {
	t       Transport
	logger  *log.Logger
	metrics *metrics.Metrics

	// readMu serializes event dispatching and guards in and fds.
	readMu sync.Mutex
	in     []byte
	fds    wire.FDQueue

	// writeMu is held from ID allocation until the request carrying
	// the ID has been written, so that IDs reach the compositor in the
	// order they were allocated.
	writeMu sync.Mutex

	// bindMu makes binding a singleton global happen at most once.
	bindMu sync.Mutex

	mu         sync.Mutex
	state      State
	closeErr   error
	objects    *objstore.Store[*object]
	display    objstore.Handle
	ifaces     map[string]*wire.Interface
	registries []*Registry
	compositor *Compositor
	shm        *Shm
	serial     uint32
}

// Connect opens a connection to the compositor. The socket is found
// from name, $WAYLAND_SOCKET, $WAYLAND_DISPLAY, and $XDG_RUNTIME_DIR
// in the usual way.
func Connect(name string, opts ...Option) (*Connection, error) {
	conn, err := wire.DialEnv(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return NewConnection(conn, opts...), nil
}

// NewConnection creates a Connection over an already established
// transport.
func NewConnection(t Transport, opts ...Option) *Connection {
	c := Connection{
		t:       t,
		logger:  debug.Logger,
		state:   Connecting,
		objects: objstore.New[*object](objstore.ClientMin, objstore.ClientMax),
		ifaces:  make(map[string]*wire.Interface),
	}
	for _, iface := range protocol.Core() {
		c.ifaces[iface.Name] = iface
	}
	for _, opt := range opts {
		opt(&c)
	}

	display := object{
		iface:   protocol.Display,
		name:    protocol.Display.Name,
		version: 1,
	}
	display.listen = c.displayListener
	c.display, _ = c.objects.Insert(objstore.DisplayID, &display)
	c.metrics.Objects(c.objects.Live())

	c.setStateLocked(Connected)
	return &c
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("connection state changed", "from", c.state, "to", s)
	c.state = s
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is usable. It becomes false
// as soon as the connection fails or is disconnected.
func (c *Connection) Connected() bool {
	return c.State() == Connected
}

// Err returns the reason the connection was closed, or nil if it is
// still connected.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Fd returns the file descriptor of the compositor socket, for use in
// poll loops. The Connection retains ownership of it.
func (c *Connection) Fd() (int, error) {
	c.mu.Lock()
	if c.state != Connected {
		defer c.mu.Unlock()
		return -1, c.deadErrLocked()
	}
	c.mu.Unlock()

	return c.t.Fd()
}

// Display returns the wl_display singleton.
func (c *Connection) Display() Object {
	return Object{c: c, h: c.display}
}

// Serial returns the callback data of the most recently completed
// roundtrip.
func (c *Connection) Serial() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// RegisterInterface describes an extension interface after the
// connection has been created. It affects objects created afterwards.
func (c *Connection) RegisterInterface(iface *wire.Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ifaces[iface.Name] = iface
}

// Lookup returns the description of the named interface.
func (c *Connection) Lookup(name string) (*wire.Interface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	iface, ok := c.ifaces[name]
	return iface, ok
}

// Disconnect closes the connection. Pending Roundtrip calls on other
// goroutines return ErrConnectionClosed, and every handle stops
// resolving. Calling Disconnect again has no effect.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if (c.state == Disconnected) || (c.state == Disconnecting) {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(Disconnecting)
	c.mu.Unlock()

	err := c.t.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = ErrConnectionClosed
	}
	c.objects.Clear()
	c.compositor, c.shm, c.registries = nil, nil, nil
	c.setStateLocked(Disconnected)
	c.metrics.Objects(0)
	c.mu.Unlock()

	if c.readMu.TryLock() {
		c.discardInputLocked()
		c.readMu.Unlock()
	}

	return err
}

// discardInputLocked drops buffered input. readMu must be held.
func (c *Connection) discardInputLocked() {
	c.in = nil
	c.fds.Close()
}

// deadErrLocked returns the error that operations on a connection that
// is no longer connected report.
func (c *Connection) deadErrLocked() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrConnectionClosed
}

// fail tears the connection down after a fatal error and returns err.
func (c *Connection) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failLocked(err)
}

func (c *Connection) failLocked(err error) error {
	if c.state == Disconnected {
		return err
	}

	if c.state != Disconnecting {
		c.logger.Error("connection failed", "err", err)
		c.metrics.Error(errorKind(err))
	}

	c.closeErr = err
	c.objects.Clear()
	c.compositor, c.shm, c.registries = nil, nil, nil
	c.setStateLocked(Disconnected)
	c.metrics.Objects(0)
	c.t.Close()
	return err
}

func errorKind(err error) string {
	var perr *ProtocolError
	switch {
	case errors.As(err, &perr):
		return "protocol"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, ErrUnknownObject):
		return "unknown_object"
	case errors.Is(err, ErrBrokenPipe):
		return "broken_pipe"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	default:
		return "other"
	}
}

// isFatal reports whether err from the transport or codec means the
// connection can no longer be used.
func isFatal(err error) bool {
	return !errors.Is(err, ErrTimeout)
}

// lookupLocked resolves h to its table entry.
func (c *Connection) lookupLocked(h objstore.Handle) (*object, error) {
	if c.state != Connected {
		return nil, fmt.Errorf("%w: %w", ErrUnknownObject, c.deadErrLocked())
	}
	return c.objects.Lookup(h)
}
