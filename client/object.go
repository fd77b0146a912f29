package wl

import (
	"fmt"

	"deedles.dev/wlengine/internal/objstore"
	"deedles.dev/wlengine/wire"
)

// Event is an event received from the compositor.
type Event struct {
	Sender    Object
	Interface string
	Opcode    uint16

	// Name is the event's name, or empty if the sender's interface is
	// not described.
	Name string

	// Args holds the decoded arguments. Received file descriptors
	// appear as wire.FD values and belong to the handler.
	Args []any

	// Data is the raw argument data of an event whose interface is not
	// described. Args is nil in that case.
	Data []byte
}

// Handler handles the events of an object. It runs on the goroutine
// that called Dispatch or Roundtrip and may make requests, but must not
// dispatch events itself.
type Handler func(Event)

// Object is a handle to a protocol object. A handle stops resolving
// once its object is destroyed, even if the object's ID is later
// reused. The zero Object resolves to nothing.
type Object struct {
	c *Connection
	h objstore.Handle
}

// ID returns the object's protocol ID.
func (o Object) ID() uint32 {
	return o.h.ID
}

func (o Object) Connection() *Connection {
	return o.c
}

func (o Object) String() string {
	name := o.Interface()
	if name == "" {
		name = "[unknown]"
	}
	return fmt.Sprintf("%v#%v", name, o.h.ID)
}

func (o Object) get() (*object, error) {
	if o.c == nil {
		return nil, fmt.Errorf("null object: %w", ErrUnknownObject)
	}
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	return o.c.lookupLocked(o.h)
}

// Alive reports whether the object is still in the object table.
func (o Object) Alive() bool {
	_, err := o.get()
	return err == nil
}

// Interface returns the name of the object's interface, or the empty
// string if the object is no longer alive.
func (o Object) Interface() string {
	obj, err := o.get()
	if err != nil {
		return ""
	}
	return obj.name
}

// Version returns the version the object was created with, or 0 if it
// is no longer alive.
func (o Object) Version() uint32 {
	obj, err := o.get()
	if err != nil {
		return 0
	}
	return obj.version
}

// SetHandler sets the function that the object's events are delivered
// to, replacing any previous one. Events of objects without a handler
// are discarded after any built-in processing, and their file
// descriptors are closed.
func (o Object) SetHandler(h Handler) error {
	if o.c == nil {
		return fmt.Errorf("null object: %w", ErrUnknownObject)
	}
	o.c.mu.Lock()
	defer o.c.mu.Unlock()

	obj, err := o.c.lookupLocked(o.h)
	if err != nil {
		return err
	}
	obj.handler = h
	return nil
}

// RemoveHandler removes the object's event handler.
func (o Object) RemoveHandler() error {
	return o.SetHandler(nil)
}

// Request sends the request with the given opcode. Arguments must be
// given as int32, uint32, wire.Fixed, string, wire.ObjectID, wire.NewID,
// []byte, or wire.FD, matching the request's signature. A wire.NewID(0)
// argument creates a new object, which is returned.
//
// Objects passed as wire.ObjectID are not checked for liveness. Use
// typed methods where they exist.
func (o Object) Request(op uint16, args ...any) (Object, error) {
	if o.c == nil {
		return Object{}, fmt.Errorf("null object: %w", ErrUnknownObject)
	}

	created, err := o.c.send(&request{sender: o.h, op: op, args: args})
	if err != nil {
		return Object{}, err
	}
	if created[0] == (objstore.Handle{}) {
		return Object{}, nil
	}
	return Object{c: o.c, h: created[0]}, nil
}

// Destroy sends the object's destructor request and marks it as
// destroyed. Its ID is reused only after the compositor acknowledges
// the destruction. The destructor must take no arguments.
func (o Object) Destroy() error {
	obj, err := o.get()
	if err != nil {
		return err
	}
	if obj.iface == nil {
		return fmt.Errorf("%v: undescribed interface: %w", o, ErrInvalidArgument)
	}

	for op, m := range obj.iface.Requests {
		if m.Destructor && (len(m.Args) == 0) && (m.MinVersion() <= obj.version) {
			_, err := o.c.send(&request{sender: o.h, op: uint16(op)})
			return err
		}
	}
	return fmt.Errorf("%v has no usable destructor: %w", o, ErrInvalidArgument)
}

func (o Object) objectID() wire.ObjectID {
	return wire.ObjectID(o.h.ID)
}
