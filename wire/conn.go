package wire

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DefaultDisplay is used when neither a name nor $WAYLAND_DISPLAY
	// is given.
	DefaultDisplay = "wayland-0"

	recvBufSize = 4096

	// maxFDs is the most descriptors libwayland sends with one
	// message chunk.
	maxFDs = 28
)

func xdgRuntimeDir(lookupEnv func(string) (string, bool)) string {
	dir, ok := lookupEnv("XDG_RUNTIME_DIR")
	if ok && (dir != "") {
		return dir
	}
	return fmt.Sprintf("/run/user/%v", os.Getuid())
}

// SocketPath determines the path to the Wayland Unix domain socket for
// the display called name, falling back to $WAYLAND_DISPLAY and then
// to DefaultDisplay when name is empty. It does not attempt to
// determine if the path corresponds to an actual socket.
func SocketPath(name string) string {
	return ResolveSocketPath(name, os.LookupEnv)
}

// ResolveSocketPath is like SocketPath but reads the environment
// through lookupEnv.
func ResolveSocketPath(name string, lookupEnv func(string) (string, bool)) string {
	if name == "" {
		v, ok := lookupEnv("WAYLAND_DISPLAY")
		if ok && (v != "") {
			name = v
		}
	}
	if name == "" {
		name = DefaultDisplay
	}
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(xdgRuntimeDir(lookupEnv), name)
}

// Conn is a low-level Wayland connection. It moves raw message bytes
// and file descriptors over a Unix domain socket and knows nothing
// about message framing.
type Conn struct {
	conn *net.UnixConn
	raw  syscall.RawConn

	wmu sync.Mutex
	buf [recvBufSize]byte
	oob []byte
}

// NewConn creates a new Conn that wraps c. After this is called, use
// the provided Close method to close c instead of calling its own
// Close method.
func NewConn(c *net.UnixConn) (*Conn, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("get raw connection: %w", err)
	}

	return &Conn{
		conn: c,
		raw:  raw,
		oob:  make([]byte, unix.CmsgSpace(maxFDs*4)),
	}, nil
}

// Dial connects to the socket at path.
func Dial(path string) (*Conn, error) {
	s, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("dial %v: %w", path, ErrSocketNotFound)
		case errors.Is(err, syscall.ECONNREFUSED):
			return nil, fmt.Errorf("dial %v: %w", path, ErrConnectionRefused)
		}
		return nil, fmt.Errorf("dial %v: %w", path, err)
	}

	c, err := NewConn(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return c, nil
}

// DialEnv opens a connection based on the current environment. It
// follows the procedure outlined at
// https://wayland-book.com/protocol-design/wire-protocol.html#transports
// with name taking precedence over $WAYLAND_DISPLAY.
func DialEnv(name string) (*Conn, error) {
	if v, ok := os.LookupEnv("WAYLAND_SOCKET"); ok && (name == "") {
		fd, err := strconv.ParseInt(v, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("parse WAYLAND_SOCKET fd: %w", err)
		}
		os.Unsetenv("WAYLAND_SOCKET")

		file := os.NewFile(uintptr(fd), "WAYLAND_SOCKET")
		defer file.Close()

		c, err := net.FileConn(file)
		if err != nil {
			return nil, fmt.Errorf("open WAYLAND_SOCKET connection: %w", err)
		}
		uc, ok := c.(*net.UnixConn)
		if !ok {
			c.Close()
			return nil, fmt.Errorf("WAYLAND_SOCKET fd %v is not a Unix socket", fd)
		}
		return NewConn(uc)
	}

	return Dial(SocketPath(name))
}

// Send writes data to the socket with fds attached to the first chunk.
// Partial writes are retried until all of data has been written.
// Concurrent calls do not interleave.
func (c *Conn) Send(data []byte, fds []int) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	for (len(data) > 0) || (len(oob) > 0) {
		n, _, err := c.conn.WriteMsgUnix(data, oob, nil)
		if err != nil {
			return sendError(err)
		}
		data = data[n:]
		oob = nil
	}
	return nil
}

func sendError(err error) error {
	switch {
	case errors.Is(err, net.ErrClosed):
		return fmt.Errorf("send: %w", ErrConnectionClosed)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("send: %w", ErrBrokenPipe)
	}
	return fmt.Errorf("send: %w", err)
}

// Receive performs a single read from the socket, returning the bytes
// and file descriptors that it yielded. If block is false and nothing
// is available, it returns no data and no error. If block is true, it
// waits until data arrives, the read deadline passes, or the Conn is
// closed.
//
// The returned slice is only valid until the next call to Receive.
// Receive must not be called concurrently with itself.
func (c *Conn) Receive(block bool) ([]byte, []int, error) {
	var (
		n, oobn, flags int
		empty          bool
		rerr           error
	)
	err := c.raw.Read(func(fd uintptr) bool {
		n, oobn, flags, _, rerr = unix.Recvmsg(int(fd), c.buf[:], c.oob, unix.MSG_CMSG_CLOEXEC|unix.MSG_DONTWAIT)
		switch {
		case errors.Is(rerr, unix.EINTR):
			return false
		case errors.Is(rerr, unix.EAGAIN):
			if block {
				return false
			}
			empty, rerr = true, nil
		}
		return true
	})
	if err == nil {
		err = rerr
	}
	if err != nil {
		return nil, nil, receiveError(err)
	}
	if empty {
		return nil, nil, nil
	}

	fds, err := parseFDs(c.oob[:oobn])
	if err != nil {
		return nil, nil, err
	}
	if flags&unix.MSG_CTRUNC != 0 {
		closeAll(fds)
		return nil, nil, fmt.Errorf("receive: %w", MalformedMessageError{Reason: "control data truncated, file descriptors were lost"})
	}
	if (n == 0) && (len(fds) == 0) {
		return nil, nil, fmt.Errorf("receive: %w", ErrConnectionClosed)
	}
	return c.buf[:n], fds, nil
}

func receiveError(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("receive: %w", ErrTimeout)
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return fmt.Errorf("receive: %w", ErrConnectionClosed)
	case errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("receive: %w", ErrConnectionClosed)
	}
	return fmt.Errorf("receive: %w", err)
}

func parseFDs(data []byte) ([]int, error) {
	if len(data) == 0 {
		return nil, nil
	}

	cmsgs, err := unix.ParseSocketControlMessage(data)
	if err != nil {
		return nil, fmt.Errorf("parse socket control messages: %w", err)
	}

	var fds []int
	for _, cmsg := range cmsgs {
		cfds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			if errors.Is(err, unix.EINVAL) {
				continue
			}
			closeAll(fds)
			return nil, fmt.Errorf("parse unix control message: %w", err)
		}
		fds = append(fds, cfds...)
	}
	return fds, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

// SetReadDeadline sets the deadline for blocking calls to Receive. A
// zero value disables the deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Fd returns the socket's file descriptor for use in poll loops. The
// Conn retains ownership of it.
func (c *Conn) Fd() (int, error) {
	var sfd int
	err := c.raw.Control(func(fd uintptr) { sfd = int(fd) })
	if err != nil {
		return -1, fmt.Errorf("get socket fd: %w", err)
	}
	return sfd, nil
}

// Close closes the underlying connection. Blocked calls to Receive
// return ErrConnectionClosed.
func (c *Conn) Close() error {
	return c.conn.Close()
}
