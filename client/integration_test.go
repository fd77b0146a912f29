package wl

import (
	"errors"
	"io"
	"testing"
	"time"

	"deedles.dev/wlengine/internal/wltest"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T) (*wltest.Server, *Connection) {
	t.Helper()

	server, err := wltest.NewServer(t.TempDir(), wltest.CoreGlobals()...)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	c, err := Connect(server.Path(), WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { c.Disconnect() })

	return server, c
}

func TestConnectFailed(t *testing.T) {
	_, err := Connect(t.TempDir() + "/missing")
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestServerGlobals(t *testing.T) {
	server, c := serve(t)

	r, err := c.GetRegistry()
	require.NoError(t, err)
	require.NoError(t, c.Roundtrip(time.Second))

	var want []Global
	for _, g := range wltest.CoreGlobals() {
		want = append(want, Global(g))
	}
	assert.Equal(t, want, r.Globals())

	require.NoError(t, server.AddGlobal(wltest.Global{Name: 10, Interface: "wl_output", Version: 2}))
	require.NoError(t, c.Roundtrip(time.Second))
	assert.Len(t, r.Find("wl_output"), 2)

	removed := make(chan Global, 1)
	r.OnGlobalRemove(func(g Global) { removed <- g })
	require.NoError(t, server.RemoveGlobal(3))
	require.NoError(t, c.Roundtrip(time.Second))
	assert.Equal(t, Global{Name: 3, Interface: "wl_output", Version: 4}, <-removed)
	assert.Equal(t, []Global{{Name: 10, Interface: "wl_output", Version: 2}}, r.Find("wl_output"))
}

func TestServerRequestOrder(t *testing.T) {
	server, c := serve(t)

	_, err := c.GetRegistry()
	require.NoError(t, err)
	require.NoError(t, c.Roundtrip(time.Second))

	s, err := c.CreateSurface()
	require.NoError(t, err)
	require.NoError(t, s.Damage(0, 0, 5, 5))
	require.NoError(t, s.Commit())
	require.NoError(t, c.Roundtrip(time.Second))

	var names []string
	for _, r := range server.Requests() {
		names = append(names, r.Interface+"."+r.Name)
	}
	assert.Equal(t, []string{
		"wl_display.get_registry",
		"wl_display.sync",
		"wl_registry.bind",
		"wl_compositor.create_surface",
		"wl_surface.damage",
		"wl_surface.commit",
		"wl_display.sync",
	}, names)

	name, ok := server.Object(s.ID())
	assert.True(t, ok)
	assert.Equal(t, "wl_surface", name)
}

func TestServerIDReuse(t *testing.T) {
	_, c := serve(t)

	_, err := c.GetRegistry()
	require.NoError(t, err)
	require.NoError(t, c.Roundtrip(time.Second))

	comp, err := c.Compositor()
	require.NoError(t, err)
	r, err := comp.CreateRegion()
	require.NoError(t, err)
	id := r.ID()

	require.NoError(t, r.Destroy())
	next, err := comp.CreateRegion()
	require.NoError(t, err)
	assert.NotEqual(t, id, next.ID())

	// The roundtrip acknowledges both the region and its own callback,
	// which was allocated next. Both IDs come back, newest first, before
	// any fresh one.
	require.NoError(t, c.Roundtrip(time.Second))
	first, err := comp.CreateRegion()
	require.NoError(t, err)
	second, err := comp.CreateRegion()
	require.NoError(t, err)
	assert.Equal(t, []uint32{next.ID() + 1, id}, []uint32{first.ID(), second.ID()})
	assert.False(t, r.Alive())
	assert.True(t, second.Alive())
}

func TestServerProtocolError(t *testing.T) {
	server, c := serve(t)

	require.NoError(t, c.Roundtrip(time.Second))
	require.NoError(t, server.Error(1, 2, "no"))

	err := c.Roundtrip(time.Second)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "wl_display", perr.Interface)
	assert.False(t, c.Connected())
}

func TestServerHangup(t *testing.T) {
	server, c := serve(t)

	require.NoError(t, c.Roundtrip(time.Second))
	require.NoError(t, server.Hangup())

	// Depending on timing the sync request either fails to write or
	// the read finds the socket closed.
	err := c.Roundtrip(time.Second)
	assert.True(t, errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrBrokenPipe), "unexpected error: %v", err)
	assert.False(t, c.Connected())
}

func TestServerShm(t *testing.T) {
	_, c := serve(t)

	_, err := c.GetRegistry()
	require.NoError(t, err)
	require.NoError(t, c.Roundtrip(time.Second))

	shm, err := c.Shm()
	require.NoError(t, err)
	require.NoError(t, c.Roundtrip(time.Second))
	assert.True(t, shm.HasFormat(0))
	assert.True(t, shm.HasFormat(1))
}
