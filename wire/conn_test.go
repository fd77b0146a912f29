package wire

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (*Conn, *Conn) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	conns := make([]*Conn, 2)
	for i, fd := range fds {
		file := os.NewFile(uintptr(fd), "socketpair")
		c, err := net.FileConn(file)
		file.Close()
		require.NoError(t, err)

		conns[i], err = NewConn(c.(*net.UnixConn))
		require.NoError(t, err)
		t.Cleanup(func() { conns[i].Close() })
	}
	return conns[0], conns[1]
}

func TestSocketPath(t *testing.T) {
	env := func(vars map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		}
	}

	tests := []struct {
		name string
		arg  string
		env  map[string]string
		want string
	}{
		{"Default", "", map[string]string{"XDG_RUNTIME_DIR": "/tmp/xdg"}, "/tmp/xdg/wayland-0"},
		{"Env", "", map[string]string{"XDG_RUNTIME_DIR": "/tmp/xdg", "WAYLAND_DISPLAY": "wayland-3"}, "/tmp/xdg/wayland-3"},
		{"Name", "wayland-1", map[string]string{"XDG_RUNTIME_DIR": "/tmp/xdg", "WAYLAND_DISPLAY": "wayland-3"}, "/tmp/xdg/wayland-1"},
		{"Absolute", "/run/sock", map[string]string{"XDG_RUNTIME_DIR": "/tmp/xdg"}, "/run/sock"},
		{"NoRuntimeDir", "wayland-2", nil, filepath.Join("/run/user", strconv.Itoa(os.Getuid()), "wayland-2")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, ResolveSocketPath(test.arg, env(test.env)))
		})
	}
}

func TestDialErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Dial(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrSocketNotFound)

	path := filepath.Join(dir, "stale")
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	l.SetUnlinkOnClose(false)
	l.Close()

	_, err = Dial(path)
	assert.ErrorIs(t, err, ErrConnectionRefused)
}

func TestSendReceive(t *testing.T) {
	a, b := socketpair(t)

	msg, _, err := Encode(1, 0, NewID(2))
	require.NoError(t, err)
	require.NoError(t, a.Send(msg, nil))

	data, fds, err := b.Receive(true)
	require.NoError(t, err)
	assert.Empty(t, fds)
	assert.Equal(t, msg, data)

	data, fds, err = b.Receive(false)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Empty(t, fds)
}

func TestSendFDs(t *testing.T) {
	a, b := socketpair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	msg, fds, err := Encode(4, 1, FD(w.Fd()), uint32(12))
	require.NoError(t, err)
	require.NoError(t, a.Send(msg, fds))

	data, got, err := b.Receive(true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg, data)

	received := os.NewFile(uintptr(got[0]), "received")
	defer received.Close()
	_, err = received.Write([]byte("ok"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))
}

func TestReceiveTruncatedFDs(t *testing.T) {
	a, b := socketpair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fds := make([]int, maxFDs+12)
	for i := range fds {
		fds[i] = int(w.Fd())
	}
	msg, _, err := Encode(4, 1, uint32(12))
	require.NoError(t, err)
	require.NoError(t, a.Send(msg, fds))

	_, got, err := b.Receive(true)
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.Empty(t, got)
}

func TestReceiveClosed(t *testing.T) {
	a, b := socketpair(t)
	require.NoError(t, a.Close())

	_, _, err := b.Receive(true)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, _, err = b.Receive(false)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReceiveTimeout(t *testing.T) {
	_, b := socketpair(t)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(20*time.Millisecond)))

	_, _, err := b.Receive(true)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCloseUnblocksReceive(t *testing.T) {
	_, b := socketpair(t)

	done := make(chan error, 1)
	go func() {
		_, _, err := b.Receive(true)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestSendBrokenPipe(t *testing.T) {
	a, b := socketpair(t)
	require.NoError(t, b.Close())

	msg, _, err := Encode(1, 0, NewID(2))
	require.NoError(t, err)

	// The first write may succeed before the peer's close is noticed.
	for range 10 {
		err = a.Send(msg, nil)
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrBrokenPipe)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Send(msg, nil), ErrConnectionClosed)
}

func TestFd(t *testing.T) {
	a, _ := socketpair(t)
	fd, err := a.Fd()
	require.NoError(t, err)
	assert.Positive(t, fd)
}

func TestFDQueue(t *testing.T) {
	var q FDQueue
	_, ok := q.PopFD()
	assert.False(t, ok)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	rfd, err := unix.Dup(int(r.Fd()))
	require.NoError(t, err)
	wfd, err := unix.Dup(int(w.Fd()))
	require.NoError(t, err)

	q.Push(rfd, wfd)
	assert.Equal(t, 2, q.Len())
	fd, ok := q.PopFD()
	require.True(t, ok)
	assert.Equal(t, rfd, fd)
	unix.Close(fd)

	require.NoError(t, q.Close())
	assert.Zero(t, q.Len())
}
