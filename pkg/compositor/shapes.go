package compositor

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// rect is a float rectangle in canvas pixels.
type rect struct {
	X, Y, W, H float64
}

func (r rect) offset(dx, dy float64) rect {
	return rect{r.X + dx, r.Y + dy, r.W, r.H}
}

// fillRoundedRect paints r with corner radius radius onto dst.
func fillRoundedRect(dst *image.RGBA, r rect, radius float64, c color.Color) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	radius = math.Max(0, math.Min(radius, math.Min(r.W, r.H)/2))

	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	ox, oy := float64(b.Min.X), float64(b.Min.Y)
	x0, y0 := float32(r.X-ox), float32(r.Y-oy)
	x1, y1 := float32(r.X+r.W-ox), float32(r.Y+r.H-oy)
	rr := float32(radius)
	k := float32(kappa) * rr

	z.MoveTo(x0+rr, y0)
	z.LineTo(x1-rr, y0)
	z.CubeTo(x1-rr+k, y0, x1, y0+rr-k, x1, y0+rr)
	z.LineTo(x1, y1-rr)
	z.CubeTo(x1, y1-rr+k, x1-rr+k, y1, x1-rr, y1)
	z.LineTo(x0+rr, y1)
	z.CubeTo(x0+rr-k, y1, x0, y1-rr+k, x0, y1-rr)
	z.LineTo(x0, y0+rr)
	z.CubeTo(x0, y0+rr-k, x0+rr-k, y0, x0+rr, y0)
	z.ClosePath()

	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// fillPill paints a stadium shape: a rounded rect whose radius is half its height.
func fillPill(dst *image.RGBA, r rect, c color.Color) {
	fillRoundedRect(dst, r, r.H/2, c)
}
