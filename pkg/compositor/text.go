package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// textSegment is a stretch of a run drawn with one face.
type textSegment struct {
	text string
	face font.Face
}

// textRun is a measured single line of text. A run switches faces where
// its family lacks a glyph; missing lists characters no face could draw.
type textRun struct {
	text     string
	segments []textSegment
	size     float64
	width    float64
	ascent   float64
	descent  float64
	missing  []rune
}

func measureSegments(size float64, s string, segs []textSegment) textRun {
	t := textRun{text: s, segments: segs, size: size}
	for _, seg := range segs {
		m := seg.face.Metrics()
		t.width += fix(font.MeasureString(seg.face, seg.text))
		t.ascent = math.Max(t.ascent, fix(m.Ascent))
		t.descent = math.Max(t.descent, fix(m.Descent))
	}
	return t
}

// baseline returns the baseline y that vertically centres the run on cy.
func (t textRun) baseline(cy float64) float64 {
	return cy + (t.ascent-t.descent)/2
}

// mask rasterises the run into an alpha mask with pad pixels of margin on
// every side. origin is where the mask's top-left lands on the canvas for
// a run centred on (cx, cy).
func (t textRun) mask(cx, cy float64, pad int) (*image.Alpha, image.Point) {
	w := int(math.Ceil(t.width)) + 2*pad
	h := int(math.Ceil(t.ascent+t.descent)) + 2*pad
	left := cx - t.width/2
	top := t.baseline(cy) - t.ascent

	origin := image.Pt(int(math.Floor(left))-pad, int(math.Floor(top))-pad)
	mask := image.NewAlpha(image.Rect(0, 0, w+1, h+1))
	d := &font.Drawer{
		Dst: mask,
		Src: image.Opaque,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(math.Round((left - float64(origin.X)) * 64)),
			Y: fixed.Int26_6(math.Round((t.baseline(cy) - float64(origin.Y)) * 64)),
		},
	}
	for _, seg := range t.segments {
		d.Face = seg.face
		d.DrawString(seg.text)
	}
	return mask, origin
}

// drawText paints the run centred on (cx, cy). With stroke > 0 an outline
// of that total width is painted first in strokeColor with round joins.
func drawText(dst *image.RGBA, t textRun, cx, cy float64, fill color.Color, stroke float64, strokeColor color.Color) {
	if t.text == "" {
		return
	}
	radius := stroke / 2
	pad := int(math.Ceil(radius)) + 1
	mask, origin := t.mask(cx, cy, pad)

	if radius > 0 {
		outline := dilate(mask, radius)
		paintMask(dst, outline, origin, strokeColor)
	}
	paintMask(dst, mask, origin, fill)
}

func paintMask(dst *image.RGBA, mask *image.Alpha, origin image.Point, c color.Color) {
	r := mask.Bounds().Sub(mask.Bounds().Min).Add(origin)
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, mask.Bounds().Min, draw.Over)
}

// dilate grows a coverage mask by a disc of the given radius. Each output
// pixel takes the maximum coverage under the disc, which reproduces a
// stroke with round joins around the glyph outline.
func dilate(src *image.Alpha, radius float64) *image.Alpha {
	b := src.Bounds()
	out := image.NewAlpha(b)
	r := int(math.Ceil(radius))

	type offset struct{ dx, dy int }
	var disc []offset
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) <= radius*radius+0.5 {
				disc = append(disc, offset{dx, dy})
			}
		}
	}

	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := src.Pix[y*src.Stride+x]
			if a == 0 {
				continue
			}
			for _, o := range disc {
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				i := ny*out.Stride + nx
				if out.Pix[i] < a {
					out.Pix[i] = a
				}
			}
		}
	}
	return out
}

func fix(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
