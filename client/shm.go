package wl

import (
	"fmt"

	"deedles.dev/wlengine/protocol"
	"deedles.dev/wlengine/wire"
	"golang.org/x/exp/maps"
)

const (
	shmCreatePool = iota
	shmRelease
)

const shmFormat = 0

// Shm is a wl_shm.
type Shm struct {
	Object
	st *shmState
}

type shmState struct {
	formats map[uint32]struct{}
}

func (st *shmState) listen(ev Event) (func(), error) {
	if ev.Opcode == shmFormat {
		st.formats[ev.Args[0].(uint32)] = struct{}{}
	}
	return nil, nil
}

// Shm returns the wl_shm, binding it from the first registry that has
// advertised one if that has not yet been done. The formats that the
// compositor supports are known after the next roundtrip.
func (c *Connection) Shm() (*Shm, error) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	st := shmState{formats: make(map[uint32]struct{})}
	obj, err := c.bindSingleton(protocol.Shm, func() *Object {
		if c.shm == nil {
			return nil
		}
		return &c.shm.Object
	}, func(obj *object) { obj.listen = st.listen })
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if (c.shm == nil) || (c.shm.h != obj.h) {
		c.shm = &Shm{Object: obj, st: &st}
	}
	return c.shm, nil
}

// Formats returns the pixel formats that the compositor has announced.
func (shm *Shm) Formats() map[uint32]struct{} {
	shm.c.mu.Lock()
	defer shm.c.mu.Unlock()
	return maps.Clone(shm.st.formats)
}

func (shm *Shm) HasFormat(format uint32) bool {
	shm.c.mu.Lock()
	defer shm.c.mu.Unlock()
	_, ok := shm.st.formats[format]
	return ok
}

// CreatePool creates a pool backed by the shared memory that fd refers
// to. The descriptor is duplicated into the compositor when the request
// is written and the caller keeps ownership of fd.
func (shm *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("wl_shm.create_pool: size %v: %w", size, ErrInvalidArgument)
	}

	created, err := shm.c.send(&request{
		sender: shm.h,
		op:     shmCreatePool,
		args:   []any{wire.NewID(0), wire.FD(fd), size},
	})
	if err != nil {
		return nil, err
	}
	return &ShmPool{Object: Object{c: shm.c, h: created[0]}, st: &shmPoolState{size: size}}, nil
}

// Release releases the wl_shm. It requires version 2.
func (shm *Shm) Release() error {
	_, err := shm.c.send(&request{sender: shm.h, op: shmRelease})
	return err
}
