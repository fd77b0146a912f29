package wl

import (
	"image"
	"slices"
)

const (
	regionDestroy = iota
	regionAdd
	regionSubtract
)

// RegionOp is a single change made to a region.
type RegionOp struct {
	Rect     image.Rectangle
	Subtract bool
}

// Region is a wl_region. Unlike surface state, changes to a region are
// sent immediately.
type Region struct {
	Object
	st *regionState
}

type regionState struct {
	ops []RegionOp
}

func (r *Region) change(op uint16, x, y, width, height int32) error {
	_, err := r.c.send(&request{sender: r.h, op: op, args: []any{x, y, width, height}})
	if err != nil {
		return err
	}

	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.st.ops = append(r.st.ops, RegionOp{
		Rect:     Rect{X: x, Y: y, Width: width, Height: height}.Rectangle(),
		Subtract: op == regionSubtract,
	})
	return nil
}

// Add adds a rectangle to the region.
func (r *Region) Add(x, y, width, height int32) error {
	return r.change(regionAdd, x, y, width, height)
}

// Subtract removes a rectangle from the region.
func (r *Region) Subtract(x, y, width, height int32) error {
	return r.change(regionSubtract, x, y, width, height)
}

// Ops returns the changes made to the region so far, in order.
func (r *Region) Ops() []RegionOp {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return slices.Clone(r.st.ops)
}

// Contains reports whether p is inside the region.
func (r *Region) Contains(p image.Point) bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	in := false
	for _, op := range r.st.ops {
		if p.In(op.Rect) {
			in = !op.Subtract
		}
	}
	return in
}
