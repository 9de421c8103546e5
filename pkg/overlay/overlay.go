// Package overlay implements drag-to-reposition for title, subtitle and
// stickers in canvas percent space.
package overlay

import (
	"errors"
	"math"

	"github.com/menta2k/cover-studio/pkg/types"
)

var (
	// ErrAlreadyCaptured is returned when a pointer that already holds an
	// element tries to grab another one.
	ErrAlreadyCaptured = errors.New("overlay: pointer already captured")
	// ErrNoTarget is returned by PointerDown without a target.
	ErrNoTarget = errors.New("overlay: no target")
)

// Target is anything with a percent position.
type Target interface {
	Position() (x, y float64)
	SetPosition(x, y float64)
}

// Options tune the controller.
type Options struct {
	// ClampToCanvas keeps dragged elements inside [0, 100] on both axes.
	ClampToCanvas bool
}

type drag struct {
	target Target
	start  types.Point // screen pixels
	origin types.Point // percent
}

// Controller tracks active drags, one per pointer.
type Controller struct {
	opts  Options
	drags map[int]*drag
}

// NewController returns a controller with the given options.
func NewController(opts Options) *Controller {
	return &Controller{opts: opts, drags: make(map[int]*drag)}
}

// PointerDown captures pointerID on target and records the starting point.
func (c *Controller) PointerDown(pointerID int, screen types.Point, target Target) error {
	if target == nil {
		return ErrNoTarget
	}
	if _, ok := c.drags[pointerID]; ok {
		return ErrAlreadyCaptured
	}
	x, y := target.Position()
	c.drags[pointerID] = &drag{
		target: target,
		start:  screen,
		origin: types.Point{X: x, Y: y},
	}
	return nil
}

// PointerMove repositions the captured target. The pixel delta is
// converted using the container's current rendered size. It reports
// whether the pointer was captured.
func (c *Controller) PointerMove(pointerID int, screen types.Point, container types.Size) bool {
	d, ok := c.drags[pointerID]
	if !ok || container.Empty() {
		return false
	}
	delta := screen.Sub(d.start)
	x := d.origin.X + delta.X/container.W*100
	y := d.origin.Y + delta.Y/container.H*100
	if c.opts.ClampToCanvas {
		x = clampPercent(x)
		y = clampPercent(y)
	}
	d.target.SetPosition(x, y)
	return true
}

// PointerUp releases the capture.
func (c *Controller) PointerUp(pointerID int) { delete(c.drags, pointerID) }

// PointerLeave releases the capture like PointerUp.
func (c *Controller) PointerLeave(pointerID int) { delete(c.drags, pointerID) }

// Dragging reports whether pointerID currently holds a target.
func (c *Controller) Dragging(pointerID int) bool {
	_, ok := c.drags[pointerID]
	return ok
}

// Active returns the number of captured pointers.
func (c *Controller) Active() int { return len(c.drags) }

// Cancel drops every capture without moving anything further.
func (c *Controller) Cancel() {
	for id := range c.drags {
		delete(c.drags, id)
	}
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
