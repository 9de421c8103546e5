package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
)

type stickerPlan struct {
	id       string
	run      textRun
	at       types.Point // canvas pixels
	scale    float64
	rotation float64 // radians
	fill     color.NRGBA
}

// stickerFont returns the family and weight a sticker kind draws with.
func (c *Compositor) stickerFont(kind types.StickerType) (string, int) {
	if kind == types.StickerEmoji && c.opts.EmojiFamily != "" && c.fonts.Has(c.opts.EmojiFamily) {
		return c.opts.EmojiFamily, scene.WeightNormal
	}
	return scene.FamilySans, scene.WeightHeavy
}

// CheckSticker reports whether a sticker's content can be drawn. Emoji
// no registered font covers fail with ErrMissingGlyphs; text stickers
// always pass and log their gaps at render time.
func (c *Compositor) CheckSticker(kind types.StickerType, content string) error {
	if kind != types.StickerEmoji {
		return nil
	}
	family, weight := c.stickerFont(kind)
	if missing := c.fonts.Missing(family, weight, content); len(missing) > 0 {
		return fmt.Errorf("%w %q in sticker %q; set compositor.emoji_family to an emoji font", ErrMissingGlyphs, string(missing), content)
	}
	return nil
}

func (c *Compositor) planSticker(st types.Sticker, cw, ch float64) (stickerPlan, error) {
	size := cw * TextStickerFactor
	if st.Type == types.StickerEmoji {
		size = cw * EmojiStickerFactor
	}
	family, weight := c.stickerFont(st.Type)
	run, err := c.fonts.Run(family, weight, size, st.Content)
	if err != nil {
		return stickerPlan{}, err
	}
	if len(run.missing) > 0 {
		if st.Type == types.StickerEmoji {
			return stickerPlan{}, fmt.Errorf("%w %q in sticker %q", ErrMissingGlyphs, string(run.missing), st.Content)
		}
		c.warnMissing("sticker", run)
	}

	scale := st.Scale
	if scale <= 0 {
		scale = 1
	}
	return stickerPlan{
		id:       st.ID,
		run:      run,
		at:       types.Point{X: st.X / 100 * cw, Y: st.Y / 100 * ch},
		scale:    scale,
		rotation: st.Rotation * math.Pi / 180,
		fill:     colorOr(c.opts.StickerColor, white),
	}, nil
}

// bounds is the axis-aligned box of the transformed glyph.
func (s stickerPlan) bounds() rect {
	hw := s.run.width / 2
	hh := (s.run.ascent + s.run.descent) / 2
	cos, sin := math.Abs(math.Cos(s.rotation)), math.Abs(math.Sin(s.rotation))
	ex := s.scale * (hw*cos + hh*sin)
	ey := s.scale * (hw*sin + hh*cos)
	return rect{X: s.at.X - ex, Y: s.at.Y - ey, W: 2 * ex, H: 2 * ey}
}

// drawSticker renders the content centred on a local origin, then maps it
// onto the canvas with translate, scale and rotate in that order.
func drawSticker(canvas *image.RGBA, s stickerPlan) {
	if s.run.text == "" {
		return
	}
	mask, origin := s.run.mask(0, 0, 2)
	glyph := image.NewRGBA(mask.Bounds())
	draw.DrawMask(glyph, glyph.Bounds(), image.NewUniform(s.fill), image.Point{}, mask, image.Point{}, draw.Src)

	cos, sin := math.Cos(s.rotation), math.Sin(s.rotation)
	a, b := s.scale*cos, -s.scale*sin
	d, e := s.scale*sin, s.scale*cos
	ox, oy := float64(origin.X), float64(origin.Y)
	m := f64.Aff3{
		a, b, s.at.X + a*ox + b*oy,
		d, e, s.at.Y + d*ox + e*oy,
	}
	xdraw.BiLinear.Transform(canvas, m, glyph, glyph.Bounds(), xdraw.Over, nil)
}
