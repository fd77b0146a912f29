package wl

import (
	"fmt"

	"deedles.dev/wlengine/wire"
)

const (
	shmPoolCreateBuffer = iota
	shmPoolDestroy
	shmPoolResize
)

// ShmPool is a wl_shm_pool.
type ShmPool struct {
	Object
	st *shmPoolState
}

type shmPoolState struct {
	size int32
}

// Size returns the size of the pool as last sent to the compositor.
func (pool *ShmPool) Size() int32 {
	pool.c.mu.Lock()
	defer pool.c.mu.Unlock()
	return pool.st.size
}

// CreateBuffer creates a buffer from a region of the pool. The region
// must lie within the pool.
func (pool *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	check := func() error {
		if (offset < 0) || (width <= 0) || (height <= 0) || (stride <= 0) {
			return fmt.Errorf("wl_shm_pool.create_buffer: offset %v, %vx%v, stride %v: %w", offset, width, height, stride, ErrInvalidArgument)
		}
		if end := int64(offset) + int64(stride)*int64(height); end > int64(pool.st.size) {
			return fmt.Errorf("wl_shm_pool.create_buffer: buffer ends at %v, pool size %v: %w", end, pool.st.size, ErrInvalidArgument)
		}
		return nil
	}

	st := bufferState{}
	created, err := pool.c.send(&request{
		sender: pool.h,
		op:     shmPoolCreateBuffer,
		args:   []any{wire.NewID(0), offset, width, height, stride, format},
		check:  check,
		init:   func(obj *object) { obj.listen = st.listen },
	})
	if err != nil {
		return nil, err
	}
	return &Buffer{Object: Object{c: pool.c, h: created[0]}, st: &st}, nil
}

// Resize grows the pool. A pool can not shrink.
func (pool *ShmPool) Resize(size int32) error {
	check := func() error {
		if size < pool.st.size {
			return fmt.Errorf("wl_shm_pool.resize: %v is smaller than %v: %w", size, pool.st.size, ErrInvalidArgument)
		}
		return nil
	}

	_, err := pool.c.send(&request{
		sender: pool.h,
		op:     shmPoolResize,
		args:   []any{size},
		check:  check,
	})
	if err != nil {
		return err
	}

	pool.c.mu.Lock()
	defer pool.c.mu.Unlock()
	pool.st.size = max(pool.st.size, size)
	return nil
}
