package shm

import (
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/internal/wltest"
	"deedles.dev/wlengine/wire"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCreateMap(t *testing.T) {
	file, err := Create("test", 4096)
	require.NoError(t, err)
	defer file.Close()

	info, err := file.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 4096, info.Size())

	mmap, err := Map(file, 4096, unix.PROT_READ|unix.PROT_WRITE)
	require.NoError(t, err)
	mmap[10] = 42

	other, err := Map(file, 4096, unix.PROT_READ)
	require.NoError(t, err)
	assert.EqualValues(t, 42, other[10])

	require.NoError(t, mmap.Unmap())
	require.NoError(t, other.Unmap())
	assert.NoError(t, Mmap(nil).Unmap())
}

func TestImageBuffer(t *testing.T) {
	server, err := wltest.NewServer(t.TempDir(), wltest.CoreGlobals()...)
	require.NoError(t, err)
	defer server.Close()

	c, err := wl.Connect(server.Path(), wl.WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	defer c.Disconnect()

	_, err = c.GetRegistry()
	require.NoError(t, err)
	require.NoError(t, c.Roundtrip(time.Second))
	shm, err := c.Shm()
	require.NoError(t, err)

	_, err = NewImageBuffer(shm, 0, 2)
	assert.ErrorIs(t, err, wl.ErrInvalidArgument)

	ib, err := NewImageBuffer(shm, 4, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 16, ib.Stride())
	assert.Equal(t, image.Rect(0, 0, 4, 2), ib.Bounds())

	img := ib.Image()
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	r, g, b, a := img.At(1, 1).RGBA()
	assert.Equal(t, [4]uint32{0xFFFF, 0, 0, 0xFFFF}, [4]uint32{r, g, b, a})

	require.NoError(t, ib.Resize(8, 8))
	assert.Equal(t, image.Rect(0, 0, 8, 8), ib.Image().Bounds())
	assert.EqualValues(t, 256, ib.ShmPool().Size())
	require.NoError(t, c.Roundtrip(time.Second))

	pools := server.Find("wl_shm", "create_pool")
	require.Len(t, pools, 1)
	assert.IsType(t, wire.FD(0), pools[0].Args[1])
	assert.Len(t, server.Find("wl_shm_pool", "create_buffer"), 2)
	assert.Len(t, server.Find("wl_shm_pool", "resize"), 1)
	assert.Len(t, server.Find("wl_buffer", "destroy"), 1)

	require.NoError(t, ib.Destroy())
	require.NoError(t, c.Roundtrip(time.Second))
	assert.Len(t, server.Find("wl_shm_pool", "destroy"), 1)
	assert.Len(t, server.Find("wl_buffer", "destroy"), 2)
}
