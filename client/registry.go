package wl

import (
	"fmt"
	"slices"

	"deedles.dev/wlengine/internal/xslices"
	"deedles.dev/wlengine/wire"
	"golang.org/x/exp/maps"
)

const (
	registryGlobal       = 0
	registryGlobalRemove = 1
)

// Global is a global object advertised by the compositor.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Registry is a wl_registry. It caches the globals that the compositor
// has advertised through it.
type Registry struct {
	Object
	st *registryState
}

// registryState is guarded by the connection's lock.
type registryState struct {
	globals  []Global
	byName   map[uint32]Global
	onGlobal []func(Global)
	onRemove []func(Global)
}

// GetRegistry creates a new registry. The compositor advertises every
// current global to it, which becomes visible after the next Dispatch
// or Roundtrip.
func (c *Connection) GetRegistry() (*Registry, error) {
	st := registryState{byName: make(map[uint32]Global)}
	created, err := c.send(&request{
		sender: c.display,
		op:     1,
		args:   []any{wire.NewID(0)},
		init:   func(obj *object) { obj.listen = st.listen },
	})
	if err != nil {
		return nil, err
	}

	r := Registry{Object: Object{c: c, h: created[0]}, st: &st}
	c.mu.Lock()
	c.registries = append(c.registries, &r)
	c.mu.Unlock()

	return &r, nil
}

func (st *registryState) listen(ev Event) (func(), error) {
	switch ev.Opcode {
	case registryGlobal:
		g := Global{
			Name:      ev.Args[0].(uint32),
			Interface: ev.Args[1].(string),
			Version:   ev.Args[2].(uint32),
		}
		if _, ok := st.byName[g.Name]; ok {
			i := slices.IndexFunc(st.globals, func(v Global) bool { return v.Name == g.Name })
			st.globals = slices.Delete(st.globals, i, i+1)
		}
		st.globals = append(st.globals, g)
		st.byName[g.Name] = g

		handlers := slices.Clone(st.onGlobal)
		return func() {
			for _, h := range handlers {
				h(g)
			}
		}, nil

	case registryGlobalRemove:
		name := ev.Args[0].(uint32)
		g, ok := st.byName[name]
		if !ok {
			return nil, nil
		}
		delete(st.byName, name)
		st.globals = slices.DeleteFunc(st.globals, func(v Global) bool { return v.Name == name })

		handlers := slices.Clone(st.onRemove)
		return func() {
			for _, h := range handlers {
				h(g)
			}
		}, nil
	}

	return nil, nil
}

// Globals returns the cached globals in the order they were
// advertised.
func (r *Registry) Globals() []Global {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return slices.Clone(r.st.globals)
}

// GlobalMap returns the cached globals keyed by name.
func (r *Registry) GlobalMap() map[uint32]Global {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return maps.Clone(r.st.byName)
}

// Find returns the cached globals that implement iface.
func (r *Registry) Find(iface string) []Global {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return xslices.Filter(r.st.globals, func(g Global) bool { return g.Interface == iface })
}

// OnGlobal registers f to be called for every global advertised after
// the call.
func (r *Registry) OnGlobal(f func(Global)) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.st.onGlobal = append(r.st.onGlobal, f)
}

// OnGlobalRemove registers f to be called when a cached global is
// removed.
func (r *Registry) OnGlobalRemove(f func(Global)) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.st.onRemove = append(r.st.onRemove, f)
}

// Bind binds the global called name. The arguments are checked against
// the cached global and the known description of iface before anything
// is sent: an uncached name fails with ErrNotFound, a different
// interface with ErrInterfaceMismatch, and a version greater than
// either the advertised or the described version with
// ErrVersionTooHigh.
func (r *Registry) Bind(name uint32, iface string, version uint32) (Object, error) {
	return r.bind(name, iface, version, nil)
}

func (r *Registry) bind(name uint32, iface string, version uint32, init func(*object)) (Object, error) {
	c := r.c
	check := func() error {
		g, ok := r.st.byName[name]
		if !ok {
			return fmt.Errorf("bind global %v: %w", name, ErrNotFound)
		}
		if g.Interface != iface {
			return fmt.Errorf("bind global %v: is %v, not %v: %w", name, g.Interface, iface, ErrInterfaceMismatch)
		}
		if version == 0 {
			return fmt.Errorf("bind %v: version 0: %w", iface, ErrInvalidArgument)
		}
		if version > g.Version {
			return fmt.Errorf("bind %v: version %v, advertised %v: %w", iface, version, g.Version, ErrVersionTooHigh)
		}
		if desc, ok := c.ifaces[iface]; ok && (version > desc.Version) {
			return fmt.Errorf("bind %v: version %v, supported %v: %w", iface, version, desc.Version, ErrVersionTooHigh)
		}
		return nil
	}

	created, err := c.send(&request{
		sender: r.h,
		op:     0,
		args:   []any{name, iface, version, wire.NewID(0)},
		check:  check,
		init:   init,
	})
	if err != nil {
		return Object{}, err
	}
	return Object{c: c, h: created[0]}, nil
}

// findGlobalLocked searches every registry's cache for a global
// implementing iface.
func (c *Connection) findGlobalLocked(iface string) (*Registry, Global, bool) {
	for _, r := range c.registries {
		for _, g := range r.st.globals {
			if g.Interface == iface {
				return r, g, true
			}
		}
	}
	return nil, Global{}, false
}
