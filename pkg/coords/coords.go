// Package coords maps crop-window (container) pixels into source image pixels.
//
// The image is laid out inside the container with a cover-fit base size,
// centred, then offset by a pan and multiplied by a zoom scale. Only the
// forward direction (container to source) is needed.
package coords

import (
	"math"

	"github.com/menta2k/cover-studio/pkg/types"
)

// Rect is a rectangle in source pixel space. It is not guaranteed to lie
// inside the image.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the centre point of the rectangle.
func (r Rect) Center() types.Point {
	return types.Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Aspect returns W/H.
func (r Rect) Aspect() float64 {
	if r.H == 0 {
		return 0
	}
	return r.W / r.H
}

// Inside reports whether r lies fully within a natural image of the given size.
func (r Rect) Inside(natural types.Size) bool {
	const tol = 1e-6
	return r.X >= -tol && r.Y >= -tol && r.X+r.W <= natural.W+tol && r.Y+r.H <= natural.H+tol
}

// Clamp intersects r with the natural image bounds.
func (r Rect) Clamp(natural types.Size) Rect {
	x0 := math.Max(r.X, 0)
	y0 := math.Max(r.Y, 0)
	x1 := math.Min(r.X+r.W, natural.W)
	y1 := math.Min(r.Y+r.H, natural.H)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// CoverFit returns the size the image occupies in the container at scale 1.
// A wider-than-container image fits its height and overflows horizontally,
// otherwise it fits its width.
func CoverFit(container, natural types.Size) types.Size {
	if container.Empty() || natural.Empty() {
		return types.Size{}
	}
	if natural.Aspect() > container.Aspect() {
		return types.Size{W: container.H * natural.Aspect(), H: container.H}
	}
	return types.Size{W: container.W, H: container.W / natural.Aspect()}
}

// MapPoint converts a container-local point into source pixel coordinates.
func MapPoint(dom types.Point, container, natural types.Size, pan types.Point, scale float64) types.Point {
	base := CoverFit(container, natural)
	if base.Empty() || scale == 0 {
		return types.Point{}
	}

	// visual centre of the image inside the container
	cx := container.W/2 + pan.X
	cy := container.H/2 + pan.Y

	// undo zoom, then convert base-rendered pixels to natural pixels
	k := natural.W / base.W
	return types.Point{
		X: (dom.X-cx)/scale*k + natural.W/2,
		Y: (dom.Y-cy)/scale*k + natural.H/2,
	}
}

// SourceRect maps the container's top-left and bottom-right corners into
// source space and returns the spanned rectangle.
func SourceRect(container, natural types.Size, pan types.Point, scale float64) Rect {
	tl := MapPoint(types.Point{}, container, natural, pan, scale)
	br := MapPoint(types.Point{X: container.W, Y: container.H}, container, natural, pan, scale)
	return Rect{X: tl.X, Y: tl.Y, W: br.X - tl.X, H: br.Y - tl.Y}
}

// MinCoverScale is the smallest zoom for which the image still covers the
// whole container. The base size is already a cover fit, so this is 1 for
// any non-degenerate input.
func MinCoverScale(container, natural types.Size) float64 {
	base := CoverFit(container, natural)
	if base.Empty() {
		return 1
	}
	return math.Max(container.W/base.W, container.H/base.H)
}

// MaxPan returns the largest absolute pan per axis that keeps the container
// covered at the given scale.
func MaxPan(container, natural types.Size, scale float64) types.Point {
	base := CoverFit(container, natural)
	return types.Point{
		X: math.Max(0, (base.W*scale-container.W)/2),
		Y: math.Max(0, (base.H*scale-container.H)/2),
	}
}
