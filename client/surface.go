package wl

import (
	"fmt"
	"image"
	"slices"
	"sync"

	"deedles.dev/wlengine/wire"
)

const (
	surfaceDestroy = iota
	surfaceAttach
	surfaceDamage
	surfaceFrame
	surfaceSetOpaqueRegion
	surfaceSetInputRegion
	surfaceCommit
	surfaceSetBufferTransform
	surfaceSetBufferScale
	surfaceDamageBuffer
	surfaceOffset
)

const (
	surfaceEnter = iota
	surfaceLeave
	surfacePreferredBufferScale
	surfacePreferredBufferTransform
)

// Rect is a rectangle as it is sent to the compositor.
type Rect struct {
	X, Y, Width, Height int32
}

// Rectangle converts r to an image.Rectangle. The conversion is done in
// int, so it does not overflow.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X)+int(r.Width), int(r.Y)+int(r.Height))
}

// SurfaceState is the double-buffered state of a surface.
type SurfaceState struct {
	// Attached is set when a buffer has been attached. A nil Buffer
	// with Attached set detaches the current buffer.
	Attached bool
	Buffer   *Buffer
	X, Y     int32

	Damage       []Rect
	BufferDamage []Rect

	OpaqueSet    bool
	OpaqueRegion *Region
	InputSet     bool
	InputRegion  *Region

	// Scale is the buffer scale, or 0 if it has not been set.
	Scale int32

	TransformSet bool
	Transform    int32

	OffsetSet bool
	Offset    image.Point
}

func (s SurfaceState) clone() SurfaceState {
	s.Damage = slices.Clone(s.Damage)
	s.BufferDamage = slices.Clone(s.BufferDamage)
	return s
}

// Surface is a wl_surface. Its state changes are buffered locally and
// sent to the compositor together when Commit is called.
type Surface struct {
	Object
	st *surfaceState
}

type surfaceField int

const (
	fieldAttach surfaceField = iota
	fieldOffset
	fieldOpaque
	fieldInput
	fieldTransform
	fieldScale
	numSurfaceFields
)

// surfaceState is guarded by the connection's lock, except for
// commitMu, which serializes Commit.
type surfaceState struct {
	c        *Connection
	commitMu sync.Mutex

	pending   SurfaceState
	committed SurfaceState

	// edits counts changes to the pending state. stamps records the
	// edit that last set each field, so that a commit only clears what
	// it sent.
	edits  uint64
	stamps [numSurfaceFields]uint64

	onEnter []func(output Object)
	onLeave []func(output Object)

	preferredScale     int32
	preferredTransform uint32
}

func (st *surfaceState) listen(ev Event) (func(), error) {
	switch ev.Opcode {
	case surfaceEnter, surfaceLeave:
		id := uint32(ev.Args[0].(wire.ObjectID))
		h, _ := st.c.objects.Handle(id)
		output := Object{c: st.c, h: h}

		handlers := st.onEnter
		if ev.Opcode == surfaceLeave {
			handlers = st.onLeave
		}
		handlers = slices.Clone(handlers)
		return func() {
			for _, f := range handlers {
				f(output)
			}
		}, nil

	case surfacePreferredBufferScale:
		st.preferredScale = ev.Args[0].(int32)

	case surfacePreferredBufferTransform:
		st.preferredTransform = ev.Args[0].(uint32)
	}

	return nil, nil
}

// update checks that the surface is alive and has at least version
// since, then applies f to the pending state.
func (s *Surface) update(since uint32, name string, f func(*SurfaceState) error) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	obj, err := s.c.lookupLocked(s.h)
	if err != nil {
		return err
	}
	if obj.version < since {
		return fmt.Errorf("wl_surface.%v requires version %v, surface has %v: %w", name, since, obj.version, ErrVersionTooHigh)
	}
	s.st.edits++
	return f(&s.st.pending)
}

func (st *surfaceState) touch(field surfaceField) {
	st.stamps[field] = st.edits
}

// Attach sets the buffer to be shown after the next commit. A nil
// buffer removes the surface's content. From version 5, x and y must be
// zero and Offset must be used instead.
func (s *Surface) Attach(buf *Buffer, x, y int32) error {
	return s.update(1, "attach", func(p *SurfaceState) error {
		obj, _ := s.c.objects.Lookup(s.h)
		if (obj.version >= 5) && ((x != 0) || (y != 0)) {
			return fmt.Errorf("wl_surface.attach: non-zero offset at version %v: %w", obj.version, ErrInvalidArgument)
		}
		p.Attached, p.Buffer, p.X, p.Y = true, buf, x, y
		s.st.touch(fieldAttach)
		return nil
	})
}

// Damage marks an area of the surface, in surface coordinates, as
// changed.
func (s *Surface) Damage(x, y, width, height int32) error {
	return s.update(1, "damage", func(p *SurfaceState) error {
		if (width < 0) || (height < 0) {
			return fmt.Errorf("wl_surface.damage: negative size: %w", ErrInvalidArgument)
		}
		p.Damage = append(p.Damage, Rect{X: x, Y: y, Width: width, Height: height})
		return nil
	})
}

// DamageBuffer marks an area of the buffer, in buffer coordinates, as
// changed.
func (s *Surface) DamageBuffer(x, y, width, height int32) error {
	return s.update(4, "damage_buffer", func(p *SurfaceState) error {
		if (width < 0) || (height < 0) {
			return fmt.Errorf("wl_surface.damage_buffer: negative size: %w", ErrInvalidArgument)
		}
		p.BufferDamage = append(p.BufferDamage, Rect{X: x, Y: y, Width: width, Height: height})
		return nil
	})
}

// SetOpaqueRegion sets the region of the surface that is opaque. A nil
// region means none of it is.
func (s *Surface) SetOpaqueRegion(r *Region) error {
	return s.update(1, "set_opaque_region", func(p *SurfaceState) error {
		p.OpaqueSet, p.OpaqueRegion = true, r
		s.st.touch(fieldOpaque)
		return nil
	})
}

// SetInputRegion sets the region of the surface that accepts input. A
// nil region means all of it does.
func (s *Surface) SetInputRegion(r *Region) error {
	return s.update(1, "set_input_region", func(p *SurfaceState) error {
		p.InputSet, p.InputRegion = true, r
		s.st.touch(fieldInput)
		return nil
	})
}

func (s *Surface) SetBufferTransform(transform int32) error {
	return s.update(2, "set_buffer_transform", func(p *SurfaceState) error {
		if (transform < 0) || (transform > 7) {
			return fmt.Errorf("wl_surface.set_buffer_transform: invalid transform %v: %w", transform, ErrInvalidArgument)
		}
		p.TransformSet, p.Transform = true, transform
		s.st.touch(fieldTransform)
		return nil
	})
}

func (s *Surface) SetBufferScale(scale int32) error {
	return s.update(3, "set_buffer_scale", func(p *SurfaceState) error {
		if scale < 1 {
			return fmt.Errorf("wl_surface.set_buffer_scale: invalid scale %v: %w", scale, ErrInvalidArgument)
		}
		p.Scale = scale
		s.st.touch(fieldScale)
		return nil
	})
}

// Offset sets the position of the surface's content relative to its
// current position.
func (s *Surface) Offset(x, y int32) error {
	return s.update(5, "offset", func(p *SurfaceState) error {
		p.OffsetSet, p.Offset = true, image.Pt(int(x), int(y))
		s.st.touch(fieldOffset)
		return nil
	})
}

// Frame requests a notification for when it is a good time to draw a
// new frame. done runs during a later Dispatch or Roundtrip. Unlike
// the other state changes, the request is sent immediately.
func (s *Surface) Frame(done func(time uint32)) (Callback, error) {
	created, err := s.c.send(&request{
		sender: s.h,
		op:     surfaceFrame,
		args:   []any{wire.NewID(0)},
		init:   func(obj *object) { obj.listen = s.c.callbackListener(done, false) },
	})
	if err != nil {
		return Callback{}, err
	}
	return Callback{Object{c: s.c, h: created[0]}}, nil
}

// Commit sends the pending state and a commit request in a single
// write. If any object that the pending state refers to is no longer
// alive, nothing is sent and the pending state is kept. Changes made
// while a commit is being written stay pending for the next one.
func (s *Surface) Commit() error {
	s.st.commitMu.Lock()
	defer s.st.commitMu.Unlock()

	s.c.mu.Lock()
	p := s.st.pending.clone()
	edits := s.st.edits
	s.c.mu.Unlock()

	_, err := s.c.send(s.commitRequests(p)...)
	if err != nil {
		return err
	}

	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.st.committed.apply(p)
	s.st.clearSent(p, edits)
	if p.Attached && (p.Buffer != nil) {
		p.Buffer.st.busy = true
	}
	return nil
}

// clearSent removes from the pending state what sent carried, keeping
// anything that was changed after edit number edits.
func (st *surfaceState) clearSent(sent SurfaceState, edits uint64) {
	p := &st.pending
	p.Damage = remainder(p.Damage, len(sent.Damage))
	p.BufferDamage = remainder(p.BufferDamage, len(sent.BufferDamage))

	sentBy := func(f surfaceField) bool { return st.stamps[f] <= edits }
	if sentBy(fieldAttach) {
		p.Attached, p.Buffer, p.X, p.Y = false, nil, 0, 0
	}
	if sentBy(fieldOffset) {
		p.OffsetSet, p.Offset = false, image.Point{}
	}
	if sentBy(fieldOpaque) {
		p.OpaqueSet, p.OpaqueRegion = false, nil
	}
	if sentBy(fieldInput) {
		p.InputSet, p.InputRegion = false, nil
	}
	if sentBy(fieldTransform) {
		p.TransformSet, p.Transform = false, 0
	}
	if sentBy(fieldScale) {
		p.Scale = 0
	}
}

func remainder[T any](s []T, sent int) []T {
	if len(s) <= sent {
		return nil
	}
	return slices.Clone(s[sent:])
}

func (s *Surface) commitRequests(p SurfaceState) []*request {
	var reqs []*request
	add := func(op uint16, refs []Object, args ...any) {
		reqs = append(reqs, &request{sender: s.h, op: op, args: args, refs: refs})
	}

	if p.Attached {
		refs, id := bufferRef(p.Buffer)
		add(surfaceAttach, refs, id, p.X, p.Y)
	}
	if p.OffsetSet {
		add(surfaceOffset, nil, int32(p.Offset.X), int32(p.Offset.Y))
	}
	for _, r := range p.Damage {
		add(surfaceDamage, nil, r.X, r.Y, r.Width, r.Height)
	}
	for _, r := range p.BufferDamage {
		add(surfaceDamageBuffer, nil, r.X, r.Y, r.Width, r.Height)
	}
	if p.OpaqueSet {
		refs, id := regionRef(p.OpaqueRegion)
		add(surfaceSetOpaqueRegion, refs, id)
	}
	if p.InputSet {
		refs, id := regionRef(p.InputRegion)
		add(surfaceSetInputRegion, refs, id)
	}
	if p.TransformSet {
		add(surfaceSetBufferTransform, nil, p.Transform)
	}
	if p.Scale != 0 {
		add(surfaceSetBufferScale, nil, p.Scale)
	}
	add(surfaceCommit, nil)

	return reqs
}

func bufferRef(b *Buffer) ([]Object, wire.ObjectID) {
	if b == nil {
		return nil, 0
	}
	return []Object{b.Object}, b.objectID()
}

func regionRef(r *Region) ([]Object, wire.ObjectID) {
	if r == nil {
		return nil, 0
	}
	return []Object{r.Object}, r.objectID()
}

func (s *SurfaceState) apply(p SurfaceState) {
	if p.Attached {
		s.Attached, s.Buffer, s.X, s.Y = true, p.Buffer, p.X, p.Y
	}
	s.Damage, s.BufferDamage = p.Damage, p.BufferDamage
	if p.OpaqueSet {
		s.OpaqueSet, s.OpaqueRegion = true, p.OpaqueRegion
	}
	if p.InputSet {
		s.InputSet, s.InputRegion = true, p.InputRegion
	}
	if p.TransformSet {
		s.TransformSet, s.Transform = true, p.Transform
	}
	if p.Scale != 0 {
		s.Scale = p.Scale
	}
	if p.OffsetSet {
		s.OffsetSet, s.Offset = true, p.Offset
	}
}

// Pending returns a copy of the state that the next commit will send.
func (s *Surface) Pending() SurfaceState {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.st.pending.clone()
}

// Committed returns a copy of the state as of the last commit. Its
// damage is the damage sent with that commit.
func (s *Surface) Committed() SurfaceState {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.st.committed.clone()
}

// PreferredBufferScale returns the scale the compositor last suggested
// for the surface's buffers, or 0 if it has not suggested one.
func (s *Surface) PreferredBufferScale() int32 {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.st.preferredScale
}

// OnEnter registers f to be called when the surface enters an output.
func (s *Surface) OnEnter(f func(output Object)) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.st.onEnter = append(s.st.onEnter, f)
}

// OnLeave registers f to be called when the surface leaves an output.
func (s *Surface) OnLeave(f func(output Object)) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.st.onLeave = append(s.st.onLeave, f)
}
