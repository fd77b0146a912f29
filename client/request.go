package wl

import (
	"fmt"
	"slices"

	"deedles.dev/wlengine/internal/objstore"
	"deedles.dev/wlengine/wire"
	"golang.org/x/sys/unix"
)

// request is a request waiting to be written.
type request struct {
	sender objstore.Handle
	op     uint16
	args   []any

	// refs are objects that the request refers to and that must still
	// be alive when it is sent.
	refs []Object

	// check runs before anything is allocated or sent.
	check func() error

	// init prepares the object created by a NewID(0) placeholder
	// before any event can be dispatched to it.
	init func(*object)
}

type prepared struct {
	req     *request
	obj     *object
	method  *wire.Method
	args    []any
	created objstore.Handle
}

// send writes reqs to the transport in a single write. Either every
// request is sent or none is. A NewID(0) argument is replaced by the
// ID of a newly created object, whose handle is returned in the slot
// of its request.
func (c *Connection) send(reqs ...*request) ([]objstore.Handle, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	preps, err := c.validateLocked(reqs)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	data, fds, err := c.encodeLocked(preps)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	for _, p := range preps {
		if p.method.Destructor {
			c.objects.Destroy(p.req.sender)
		}
	}
	c.metrics.Objects(c.objects.Live())
	c.mu.Unlock()

	err = c.t.Send(data, fds)
	if err != nil {
		return nil, c.fail(err)
	}

	created := make([]objstore.Handle, len(preps))
	for i, p := range preps {
		created[i] = p.created
		c.metrics.Request(p.obj.name)
		c.logger.Debug(" -> " + wire.Describe(p.obj.name, p.req.sender.ID, p.method.Name, p.args))
	}
	c.metrics.Sent(len(data), len(fds))
	return created, nil
}

func (c *Connection) validateLocked(reqs []*request) ([]prepared, error) {
	preps := make([]prepared, 0, len(reqs))
	for _, req := range reqs {
		obj, err := c.lookupLocked(req.sender)
		if err != nil {
			return nil, err
		}
		if obj.iface == nil {
			return nil, fmt.Errorf("%v#%v: cannot send requests on an undescribed interface: %w", obj.name, req.sender.ID, ErrInvalidArgument)
		}

		m, err := obj.iface.Request(req.op)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if m.MinVersion() > obj.version {
			return nil, fmt.Errorf("%v.%v requires version %v, object has %v: %w", obj.name, m.Name, m.MinVersion(), obj.version, ErrVersionTooHigh)
		}
		err = m.Check(req.args)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}

		for _, ref := range req.refs {
			if ref.c != c {
				return nil, fmt.Errorf("%v.%v: object from another connection: %w", obj.name, m.Name, ErrInvalidArgument)
			}
			_, err := c.lookupLocked(ref.h)
			if err != nil {
				return nil, fmt.Errorf("%v.%v: %w", obj.name, m.Name, err)
			}
		}

		if req.check != nil {
			err = req.check()
			if err != nil {
				return nil, err
			}
		}

		preps = append(preps, prepared{req: req, obj: obj, method: m})
	}
	return preps, nil
}

// encodeLocked allocates placeholder IDs and encodes every request.
// Allocations are undone if anything fails.
func (c *Connection) encodeLocked(preps []prepared) (data []byte, fds []int, err error) {
	defer func() {
		if err == nil {
			return
		}
		for _, p := range preps {
			if p.created != (objstore.Handle{}) {
				c.objects.Release(p.created.ID)
			}
		}
	}()

	for i := range preps {
		p := &preps[i]
		p.args = slices.Clone(p.req.args)
		for ai, arg := range p.method.Args {
			if (arg.Type != wire.ArgNewID) || (p.args[ai] != wire.NewID(0)) {
				continue
			}

			obj := object{version: p.obj.version}
			if arg.Interface != "" {
				obj.name = arg.Interface
			} else {
				name, nok := argAt[string](p.args, ai-2)
				version, vok := argAt[uint32](p.args, ai-1)
				if !nok || !vok {
					return nil, nil, fmt.Errorf("%v.%v: new_id without interface and version: %w", p.obj.name, p.method.Name, ErrInvalidArgument)
				}
				obj.name, obj.version = name, version
			}
			obj.iface = c.ifaces[obj.name]
			if p.req.init != nil {
				p.req.init(&obj)
			}

			h, err := c.objects.Allocate(&obj)
			if err != nil {
				return nil, nil, err
			}
			p.created = h
			p.args[ai] = wire.NewID(h.ID)
		}

		msg, mfds, err := wire.Encode(p.req.sender.ID, p.req.op, p.args...)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		data = append(data, msg...)
		fds = append(fds, mfds...)
	}

	return data, fds, nil
}

func argAt[T any](args []any, i int) (v T, ok bool) {
	if (i < 0) || (i >= len(args)) {
		return v, false
	}
	v, ok = args[i].(T)
	return v, ok
}

// closeFDs closes every file descriptor among args.
func closeFDs(args []any) {
	for _, arg := range args {
		if fd, ok := arg.(wire.FD); ok {
			unix.Close(int(fd))
		}
	}
}
