// Package wltest provides a scripted compositor for testing clients.
package wltest

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"deedles.dev/wlengine/internal/debug"
	"deedles.dev/wlengine/internal/xslices"
	"deedles.dev/wlengine/protocol"
	"deedles.dev/wlengine/wire"
	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Global is a global advertised by a Server.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// CoreGlobals returns a typical set of globals.
func CoreGlobals() []Global {
	return []Global{
		{Name: 1, Interface: "wl_compositor", Version: 6},
		{Name: 2, Interface: "wl_shm", Version: 2},
		{Name: 3, Interface: "wl_output", Version: 4},
	}
}

// Request is a request received from the client.
type Request struct {
	Sender    uint32
	Interface string
	Opcode    uint16
	Name      string
	Args      []any
}

func (r Request) String() string {
	return wire.Describe(r.Interface, r.Sender, r.Name, r.Args)
}

// Server is a compositor that accepts a single client and answers the
// core requests that a client needs answered: sync, get_registry,
// bind, and destructors. Everything else is only recorded.
type Server struct {
	lis    *net.UnixListener
	path   string
	logger *log.Logger

	ready chan struct{}
	done  chan struct{}
	close sync.Once

	mu         sync.Mutex
	conn       *wire.Conn
	err        error
	globals    []Global
	objects    map[uint32]string
	registries []uint32
	requests   []Request
	onRequest  []func(Request)
	fds        []int
	serial     uint32
}

// NewServer starts listening on a socket in dir.
func NewServer(dir string, globals ...Global) (*Server, error) {
	path := filepath.Join(dir, "wayland-test")
	lis, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := Server{
		lis:     lis,
		path:    path,
		logger:  debug.Logger.WithPrefix("wltest"),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		globals: slices.Clone(globals),
		objects: map[uint32]string{1: "wl_display"},
	}
	go s.serve()

	return &s, nil
}

// Path returns the path of the server's socket.
func (s *Server) Path() string {
	return s.path
}

func (s *Server) serve() {
	defer close(s.done)

	uc, err := s.lis.AcceptUnix()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.setErr(err)
		}
		return
	}
	conn, err := wire.NewConn(uc)
	if err != nil {
		uc.Close()
		s.setErr(err)
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)

	var buf []byte
	var fds wire.FDQueue
	defer fds.Close()
	for {
		data, rfds, err := conn.Receive(true)
		if err != nil {
			if !errors.Is(err, wire.ErrConnectionClosed) {
				s.setErr(err)
			}
			return
		}
		buf = append(buf, data...)
		fds.Push(rfds...)

		for {
			msg, n, err := wire.Decode(buf, s.lookup, &fds)
			if err != nil {
				s.logger.Error("decode request", "err", err)
				s.setErr(err)
				return
			}
			if n == 0 {
				break
			}
			buf = buf[n:]

			err = s.handle(msg)
			if err != nil {
				s.logger.Error("handle request", "err", err)
				s.setErr(err)
				return
			}
		}
	}
}

func (s *Server) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the first error that stopped the server from serving its
// client, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Server) lookup(sender uint32, op uint16) (*wire.Method, error) {
	s.mu.Lock()
	name, ok := s.objects[sender]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("request from unknown object #%v", sender)
	}

	iface, ok := protocol.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("request from %v#%v: undescribed interface", name, sender)
	}
	return iface.Request(op)
}

func (s *Server) handle(msg *wire.Message) error {
	s.mu.Lock()

	req := Request{
		Sender:    msg.Sender,
		Interface: s.objects[msg.Sender],
		Opcode:    msg.Opcode,
		Name:      msg.Method.Name,
		Args:      msg.Args,
	}
	s.logger.Debug(" <- " + req.String())
	s.requests = append(s.requests, req)

	var created uint32
	for i, arg := range msg.Method.Args {
		switch arg.Type {
		case wire.ArgNewID:
			name := arg.Interface
			if name == "" {
				name = msg.Args[i-2].(string)
			}
			created = uint32(msg.Args[i].(wire.NewID))
			s.objects[created] = name
		case wire.ArgFD:
			s.fds = append(s.fds, int(msg.Args[i].(wire.FD)))
		}
	}

	var err error
	switch {
	case (req.Interface == "wl_display") && (req.Name == "sync"):
		s.serial++
		delete(s.objects, created)
		err = errors.Join(
			s.sendLocked(created, 0, s.serial),
			s.sendLocked(1, 1, created),
		)

	case (req.Interface == "wl_display") && (req.Name == "get_registry"):
		s.registries = append(s.registries, created)
		for _, g := range s.globals {
			err = errors.Join(err, s.sendLocked(created, 0, g.Name, g.Interface, g.Version))
		}

	case (req.Interface == "wl_registry") && (req.Name == "bind"):
		if req.Args[1] == "wl_shm" {
			err = errors.Join(
				s.sendLocked(created, 0, protocol.FormatARGB8888),
				s.sendLocked(created, 0, protocol.FormatXRGB8888),
			)
		}

	case msg.Method.Destructor:
		delete(s.objects, req.Sender)
		err = s.sendLocked(1, 1, req.Sender)
	}

	hooks := slices.Clone(s.onRequest)
	s.mu.Unlock()

	for _, f := range hooks {
		f(req)
	}
	return err
}

func (s *Server) sendLocked(sender uint32, op uint16, args ...any) error {
	data, fds, err := wire.Encode(sender, op, args...)
	if err != nil {
		return err
	}
	return s.conn.Send(data, fds)
}

// Send sends an event to the client, waiting for it to connect first.
func (s *Server) Send(sender uint32, op uint16, args ...any) error {
	select {
	case <-s.ready:
	case <-s.done:
		return wire.ErrConnectionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(sender, op, args...)
}

// Error sends a wl_display.error event.
func (s *Server) Error(object, code uint32, message string) error {
	return s.Send(1, 0, wire.ObjectID(object), code, message)
}

// AddGlobal advertises g to every registry and to registries created
// later.
func (s *Server) AddGlobal(g Global) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.globals = append(s.globals, g)
	var errs []error
	for _, r := range s.registries {
		errs = append(errs, s.sendLocked(r, 0, g.Name, g.Interface, g.Version))
	}
	return errors.Join(errs...)
}

// RemoveGlobal withdraws the global called name.
func (s *Server) RemoveGlobal(name uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.globals = slices.DeleteFunc(s.globals, func(g Global) bool { return g.Name == name })
	var errs []error
	for _, r := range s.registries {
		errs = append(errs, s.sendLocked(r, 1, name))
	}
	return errors.Join(errs...)
}

// Requests returns every request received so far, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Find returns the received requests with the given interface and
// name.
func (s *Server) Find(iface, name string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return xslices.Filter(s.requests, func(r Request) bool {
		return (r.Interface == iface) && (r.Name == name)
	})
}

// Object returns the interface of the client object with the given ID
// as the server sees it.
func (s *Server) Object(id uint32) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.objects[id]
	return name, ok
}

// OnRequest registers f to be called for every request after the
// server has answered it. It runs on the server's goroutine.
func (s *Server) OnRequest(f func(Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRequest = append(s.onRequest, f)
}

// Hangup closes the client's connection without closing the listener.
func (s *Server) Hangup() error {
	select {
	case <-s.ready:
	case <-s.done:
		return wire.ErrConnectionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Close stops the server and closes every file descriptor it received.
func (s *Server) Close() error {
	var errs []error
	s.close.Do(func() {
		errs = append(errs, s.lis.Close())

		s.mu.Lock()
		if s.conn != nil {
			err := s.conn.Close()
			if !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		s.mu.Unlock()

		<-s.done

		s.mu.Lock()
		for _, fd := range s.fds {
			errs = append(errs, unix.Close(fd))
		}
		s.fds = nil
		s.mu.Unlock()

		os.Remove(s.path)
	})
	return errors.Join(errs...)
}
