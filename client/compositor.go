package wl

import (
	"fmt"

	"deedles.dev/wlengine/protocol"
	"deedles.dev/wlengine/wire"
)

// Compositor is a wl_compositor.
type Compositor struct {
	Object
}

// Compositor returns the wl_compositor, binding it from the first
// registry that has advertised one if that has not yet been done. It
// fails with ErrNotFound if no registry has seen one, such as before
// the first roundtrip after GetRegistry.
func (c *Connection) Compositor() (*Compositor, error) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	obj, err := c.bindSingleton(protocol.Compositor, func() *Object {
		if c.compositor == nil {
			return nil
		}
		return &c.compositor.Object
	}, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if (c.compositor == nil) || (c.compositor.h != obj.h) {
		c.compositor = &Compositor{Object: obj}
	}
	return c.compositor, nil
}

// bindSingleton returns the object that cached yields if it is still
// alive, or binds a new one.
func (c *Connection) bindSingleton(iface *wire.Interface, cached func() *Object, init func(*object)) (Object, error) {
	c.mu.Lock()
	if cur := cached(); cur != nil {
		if _, err := c.lookupLocked(cur.h); err == nil {
			c.mu.Unlock()
			return *cur, nil
		}
	}
	if c.state != Connected {
		defer c.mu.Unlock()
		return Object{}, fmt.Errorf("%w: %w", ErrUnknownObject, c.deadErrLocked())
	}
	r, g, ok := c.findGlobalLocked(iface.Name)
	c.mu.Unlock()

	if !ok {
		return Object{}, fmt.Errorf("%v: %w", iface.Name, ErrNotFound)
	}
	return r.bind(g.Name, g.Interface, min(g.Version, iface.Version), init)
}

// CreateSurface creates a surface through the connection's compositor.
func (c *Connection) CreateSurface() (*Surface, error) {
	comp, err := c.Compositor()
	if err != nil {
		return nil, err
	}
	return comp.CreateSurface()
}

func (comp *Compositor) CreateSurface() (*Surface, error) {
	st := surfaceState{c: comp.c}
	created, err := comp.c.send(&request{
		sender: comp.h,
		op:     0,
		args:   []any{wire.NewID(0)},
		init:   func(obj *object) { obj.listen = st.listen },
	})
	if err != nil {
		return nil, err
	}
	return &Surface{Object: Object{c: comp.c, h: created[0]}, st: &st}, nil
}

func (comp *Compositor) CreateRegion() (*Region, error) {
	created, err := comp.c.send(&request{
		sender: comp.h,
		op:     1,
		args:   []any{wire.NewID(0)},
	})
	if err != nil {
		return nil, err
	}
	return &Region{Object: Object{c: comp.c, h: created[0]}, st: new(regionState)}, nil
}
