package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateMonotonic(t *testing.T) {
	s := New[string](ClientMin, ClientMax)

	var last uint32
	for range 100 {
		h, err := s.Allocate("obj")
		require.NoError(t, err)
		assert.Greater(t, h.ID, last)
		last = h.ID
	}
	assert.Equal(t, uint32(101), last)
	assert.Equal(t, 100, s.Len())
}

func TestDisplayInsert(t *testing.T) {
	s := New[string](ClientMin, ClientMax)
	h, err := s.Insert(DisplayID, "wl_display")
	require.NoError(t, err)

	_, err = s.Insert(DisplayID, "again")
	assert.ErrorIs(t, err, ErrIDInUse)

	v, err := s.Lookup(h)
	require.NoError(t, err)
	assert.Equal(t, "wl_display", v)

	h2, err := s.Allocate("first")
	require.NoError(t, err)
	assert.Equal(t, ClientMin, h2.ID)

	_, err = s.Insert(0, "null")
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestReuseAfterRelease(t *testing.T) {
	s := New[string](ClientMin, ClientMax)
	a, _ := s.Allocate("a")
	b, _ := s.Allocate("b")

	require.NoError(t, s.Destroy(a))
	_, err := s.Lookup(a)
	assert.ErrorIs(t, err, ErrUnknownObject)

	v, zombie, ok := s.Get(a.ID)
	assert.True(t, ok)
	assert.True(t, zombie)
	assert.Equal(t, "a", v)

	c, err := s.Allocate("c")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID, "zombie ID was reused before release")
	assert.Greater(t, c.ID, b.ID)

	require.NoError(t, s.Release(a.ID))
	d, err := s.Allocate("d")
	require.NoError(t, err)
	assert.Equal(t, a.ID, d.ID)
	assert.NotEqual(t, a.Gen, d.Gen)

	_, err = s.Lookup(a)
	assert.ErrorIs(t, err, ErrUnknownObject, "stale handle resolved to new object")
	v, err = s.Lookup(d)
	require.NoError(t, err)
	assert.Equal(t, "d", v)
}

func TestReuseLIFO(t *testing.T) {
	s := New[int](ClientMin, ClientMax)
	hs := make([]Handle, 4)
	for i := range hs {
		hs[i], _ = s.Allocate(i)
	}
	for _, h := range hs[:3] {
		require.NoError(t, s.Destroy(h))
		require.NoError(t, s.Release(h.ID))
	}

	h, _ := s.Allocate(10)
	assert.Equal(t, hs[2].ID, h.ID)
	h, _ = s.Allocate(11)
	assert.Equal(t, hs[1].ID, h.ID)
}

func TestReleaseUnknown(t *testing.T) {
	s := New[int](ClientMin, ClientMax)
	assert.ErrorIs(t, s.Release(42), ErrUnknownObject)
}

func TestServerIDsNotRecycled(t *testing.T) {
	s := New[int](ClientMin, ClientMax)
	h, err := s.Insert(ServerMin, 1)
	require.NoError(t, err)
	require.NoError(t, s.Release(h.ID))

	c, err := s.Allocate(2)
	require.NoError(t, err)
	assert.Equal(t, ClientMin, c.ID)
}

func TestExhausted(t *testing.T) {
	s := New[int](2, 4)
	for range 3 {
		_, err := s.Allocate(0)
		require.NoError(t, err)
	}
	_, err := s.Allocate(0)
	assert.ErrorIs(t, err, ErrIDsExhausted)

	require.NoError(t, s.Release(3))
	h, err := s.Allocate(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.ID)
}

func TestRangeAndClear(t *testing.T) {
	s := New[int](ClientMin, ClientMax)
	a, _ := s.Allocate(1)
	b, _ := s.Allocate(2)
	s.Allocate(3)
	require.NoError(t, s.Destroy(b))

	sum := 0
	s.Range(func(h Handle, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 4, sum)
	assert.Equal(t, 2, s.Live())

	h, ok := s.Handle(a.ID)
	assert.True(t, ok)
	assert.Equal(t, a, h)
	_, ok = s.Handle(b.ID)
	assert.False(t, ok)

	s.Clear()
	assert.Zero(t, s.Len())
	_, err := s.Lookup(a)
	assert.ErrorIs(t, err, ErrUnknownObject)
}
