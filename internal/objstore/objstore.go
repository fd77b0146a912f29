// Package objstore tracks protocol objects by ID. Objects are referred
// to by generation-checked handles so that a handle to a destroyed
// object never resolves to a later object that reused its ID.
package objstore

import (
	"errors"
	"fmt"

	"deedles.dev/wlengine/internal/set"
)

const (
	// DisplayID is the fixed ID of the wl_display singleton.
	DisplayID uint32 = 1

	// ClientMin and ClientMax bound the IDs allocated by the client.
	ClientMin uint32 = 2
	ClientMax uint32 = 0xfeffffff

	// ServerMin is the first ID of the range allocated by the server.
	ServerMin uint32 = 0xff000000
)

var (
	ErrUnknownObject = errors.New("unknown object")
	ErrIDInUse       = errors.New("object ID in use")
	ErrIDsExhausted  = errors.New("object IDs exhausted")
)

// Handle refers to a single incarnation of an object ID.
type Handle struct {
	ID  uint32
	Gen uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("#%v.%v", h.ID, h.Gen)
}

type entry[T any] struct {
	val T
	gen uint32
}

// Store maps object IDs to values of type T. It is not safe for
// concurrent use.
type Store[T any] struct {
	objects map[uint32]entry[T]
	zombies set.Set[uint32]
	gens    map[uint32]uint32

	first, max uint32
	next       uint32
	free       []uint32
}

// New returns a Store that allocates IDs from first through max,
// inclusive.
func New[T any](first, max uint32) *Store[T] {
	return &Store[T]{
		objects: make(map[uint32]entry[T]),
		zombies: set.New[uint32](),
		gens:    make(map[uint32]uint32),
		first:   first,
		max:     max,
		next:    first,
	}
}

func (s *Store[T]) put(id uint32, v T) Handle {
	gen := s.gens[id] + 1
	s.gens[id] = gen
	s.objects[id] = entry[T]{val: v, gen: gen}
	return Handle{ID: id, Gen: gen}
}

// Allocate assigns v the most recently released ID, or the next
// never-used one if none have been released.
func (s *Store[T]) Allocate(v T) (Handle, error) {
	for len(s.free) > 0 {
		id := s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
		if _, ok := s.objects[id]; ok {
			continue
		}
		return s.put(id, v), nil
	}

	for s.next <= s.max {
		id := s.next
		s.next++
		if _, ok := s.objects[id]; ok {
			continue
		}
		return s.put(id, v), nil
	}

	return Handle{}, ErrIDsExhausted
}

// Insert registers v under a specific ID, such as the display's or one
// allocated by the server.
func (s *Store[T]) Insert(id uint32, v T) (Handle, error) {
	if id == 0 {
		return Handle{}, fmt.Errorf("insert null object: %w", ErrUnknownObject)
	}
	if _, ok := s.objects[id]; ok {
		return Handle{}, fmt.Errorf("insert #%v: %w", id, ErrIDInUse)
	}
	return s.put(id, v), nil
}

// Lookup returns the value that h refers to. It fails if h is stale or
// the object has been destroyed.
func (s *Store[T]) Lookup(h Handle) (v T, err error) {
	e, ok := s.objects[h.ID]
	if !ok || (e.gen != h.Gen) || s.zombies.Has(h.ID) {
		return v, fmt.Errorf("object %v: %w", h, ErrUnknownObject)
	}
	return e.val, nil
}

// Get returns the value currently registered under id, live or not.
func (s *Store[T]) Get(id uint32) (v T, zombie, ok bool) {
	e, ok := s.objects[id]
	if !ok {
		return v, false, false
	}
	return e.val, s.zombies.Has(id), true
}

// Handle returns a handle to the live object registered under id.
func (s *Store[T]) Handle(id uint32) (Handle, bool) {
	e, ok := s.objects[id]
	if !ok || s.zombies.Has(id) {
		return Handle{}, false
	}
	return Handle{ID: id, Gen: e.gen}, true
}

// Destroy marks the object h refers to as destroyed. Its ID stays
// reserved until Release is called for it.
func (s *Store[T]) Destroy(h Handle) error {
	_, err := s.Lookup(h)
	if err != nil {
		return err
	}
	s.zombies.Add(h.ID)
	return nil
}

// Release removes id from the store. IDs in the store's allocation
// range become available to Allocate again.
func (s *Store[T]) Release(id uint32) error {
	if _, ok := s.objects[id]; !ok {
		return fmt.Errorf("release #%v: %w", id, ErrUnknownObject)
	}

	delete(s.objects, id)
	s.zombies.Remove(id)
	if (id >= s.first) && (id < s.next) {
		s.free = append(s.free, id)
	}
	return nil
}

// Len returns the number of registered objects, including destroyed
// ones awaiting release.
func (s *Store[T]) Len() int {
	return len(s.objects)
}

// Live returns the number of objects that have not been destroyed.
func (s *Store[T]) Live() int {
	return len(s.objects) - s.zombies.Len()
}

// Range calls yield for every live object until it returns false.
// The order is unspecified.
func (s *Store[T]) Range(yield func(Handle, T) bool) {
	for id, e := range s.objects {
		if s.zombies.Has(id) {
			continue
		}
		if !yield(Handle{ID: id, Gen: e.gen}, e.val) {
			return
		}
	}
}

// Clear removes every object. Handles issued before the call never
// resolve again.
func (s *Store[T]) Clear() {
	clear(s.objects)
	clear(s.zombies)
	s.free = nil
}
