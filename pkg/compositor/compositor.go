// Package compositor renders a cover frame from model state. Rendering is
// a pure function of its input: the same RenderInput always produces the
// same pixels, so preview and export share one code path.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cover-studio/internal/logging"
	"github.com/menta2k/cover-studio/pkg/coords"
	"github.com/menta2k/cover-studio/pkg/overlay"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
)

// Size and spacing factors, relative to the canvas or a font size.
const (
	TitleSizeFactor       = 0.13
	SubtitleSizeFactor    = 0.45
	StrokeFactor          = 0.08
	TitlePadX             = 0.6
	TitlePadY             = 0.4
	TitleRadius           = 0.25
	SubtitlePillHeight    = 1.6
	SubtitlePadX          = 0.4
	SubtitleShadowOffset  = 4.0
	EmojiStickerFactor    = 0.15
	TextStickerFactor     = 0.08
	toneStart             = 0.5
	toneMaxAlpha          = 0.7
	washAlpha             = 0.05
	subtitleShadowOpacity = 0.3
)

// ErrNoCanvas is returned when there is nothing to render onto.
var ErrNoCanvas = errors.New("compositor: no canvas")

// RenderInput is everything a frame depends on.
type RenderInput struct {
	Base     image.Image
	Filter   string
	Layout   types.LayoutConfig
	Title    string
	Stickers []types.Sticker
	// Width and Height of the canvas; zero uses the base image size.
	Width  int
	Height int
}

// Validate checks the input can be rendered.
func (in RenderInput) Validate() error {
	if in.Base == nil {
		return fmt.Errorf("%w: base image is nil", ErrNoCanvas)
	}
	w, h := in.size()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: canvas size %dx%d", ErrNoCanvas, w, h)
	}
	return nil
}

func (in RenderInput) size() (int, int) {
	w, h := in.Width, in.Height
	if w == 0 && h == 0 && in.Base != nil {
		b := in.Base.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	return w, h
}

// Options configure a Compositor.
type Options struct {
	// EmojiFamily draws emoji stickers when registered in the font book.
	// Without it emoji resolve through the fallback chain, which only
	// covers monochrome symbols unless an emoji font is registered.
	EmojiFamily string
	// StickerColor fills sticker glyphs.
	StickerColor string
}

// Compositor draws frames with a shared font book.
type Compositor struct {
	fonts  *FontBook
	opts   Options
	warned sync.Map // missing-glyph warnings already logged
}

// New returns a compositor. A nil book uses the embedded Go fonts.
func New(fonts *FontBook, opts Options) (*Compositor, error) {
	if fonts == nil {
		var err error
		if fonts, err = NewFontBook(); err != nil {
			return nil, err
		}
	}
	if opts.StickerColor == "" {
		opts.StickerColor = "#ffffff"
	}
	return &Compositor{fonts: fonts, opts: opts}, nil
}

// Fonts returns the compositor's font book.
func (c *Compositor) Fonts() *FontBook { return c.fonts }

// warnMissing logs, once per text, characters that render as boxes.
func (c *Compositor) warnMissing(what string, run textRun) {
	if len(run.missing) == 0 {
		return
	}
	if _, seen := c.warned.LoadOrStore(run.text, true); seen {
		return
	}
	logging.Printf("compositor: no font covers %q in %s %q; add a fallback family under compositor.fonts",
		string(run.missing), what, run.text)
}

// Render draws one frame, back to front: filtered base, tone overlay,
// title, subtitle, stickers.
func (c *Compositor) Render(in RenderInput) (*image.RGBA, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	w, h := in.size()

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := drawBase(canvas, in.Base, in.Filter); err != nil {
		return nil, err
	}
	drawTone(canvas)

	p, err := c.plan(in, w, h)
	if err != nil {
		return nil, err
	}
	if p.title != nil {
		c.drawTitle(canvas, in.Layout, p)
	}
	if p.subtitle != nil {
		drawSubtitle(canvas, in.Layout, p)
	}
	for _, st := range p.stickers {
		drawSticker(canvas, st)
	}
	return canvas, nil
}

// Elements returns hit boxes in canvas percent, in paint order, for the
// draggable parts of a frame.
func (c *Compositor) Elements(in RenderInput) ([]overlay.Element, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	w, h := in.size()
	p, err := c.plan(in, w, h)
	if err != nil {
		return nil, err
	}

	toPercent := func(r rect) coords.Rect {
		return coords.Rect{X: r.X / float64(w) * 100, Y: r.Y / float64(h) * 100, W: r.W / float64(w) * 100, H: r.H / float64(h) * 100}
	}
	var out []overlay.Element
	if p.title != nil {
		out = append(out, overlay.Element{ID: scene.Title, Box: toPercent(p.titleBox)})
	}
	if p.subtitle != nil {
		out = append(out, overlay.Element{ID: scene.Subtitle, Box: toPercent(p.subtitleBox)})
	}
	for _, st := range p.stickers {
		out = append(out, overlay.Element{ID: scene.StickerElement(st.id), Box: toPercent(st.bounds())})
	}
	return out, nil
}

// drawBase stretches the base over the whole canvas and applies the filter
// to that layer only.
func drawBase(canvas *image.RGBA, base image.Image, filter string) error {
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	var layer *image.NRGBA
	if b := base.Bounds(); b.Dx() == w && b.Dy() == h {
		layer = imaging.Clone(base)
	} else {
		layer = imaging.Resize(base, w, h, imaging.Linear)
	}
	filtered, err := ApplyFilter(layer, filter)
	if err != nil {
		return err
	}
	draw.Draw(canvas, canvas.Bounds(), filtered, image.Point{}, draw.Over)
	return nil
}

// drawTone darkens the lower half with a gradient and dims the whole frame slightly.
func drawTone(canvas *image.RGBA) {
	b := canvas.Bounds()
	h := float64(b.Dy())
	start := int(math.Round(h * toneStart))
	for y := b.Min.Y + start; y < b.Max.Y; y++ {
		t := (float64(y-b.Min.Y) + 0.5 - h*toneStart) / (h * (1 - toneStart))
		a := uint8(math.Round(clamp01(t) * toneMaxAlpha * 255))
		if a == 0 {
			continue
		}
		row := image.Rect(b.Min.X, y, b.Max.X, y+1)
		draw.Draw(canvas, row, image.NewUniform(color.NRGBA{A: a}), image.Point{}, draw.Over)
	}
	draw.Draw(canvas, b, image.NewUniform(color.NRGBA{A: uint8(math.Round(washAlpha * 255))}), image.Point{}, draw.Over)
}

// framePlan is the resolved geometry of a frame's text and stickers.
type framePlan struct {
	title       *textRun
	titleAt     types.Point
	titleBox    rect
	subtitle    *textRun
	subtitleAt  types.Point
	subtitleBox rect
	stickers    []stickerPlan
}

func (c *Compositor) plan(in RenderInput, w, h int) (*framePlan, error) {
	cw, ch := float64(w), float64(h)
	cfg := in.Layout
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1
	}
	titleSize := math.Min(cw, ch) * TitleSizeFactor * scale
	subSize := titleSize * SubtitleSizeFactor

	family := cfg.FontFamily
	weight := cfg.FontWeight
	if family == "" || weight == 0 {
		if family == "" {
			family = scene.FamilyFor(cfg.FontStyle)
		}
		weight = scene.WeightFor(cfg.FontStyle, cfg.FontFamily)
	}
	if c.fonts.IsDisplay(family) {
		weight = scene.WeightNormal
	}

	p := &framePlan{}

	titleY, subtitleY := scene.Rows(cfg.Position)
	p.titleAt = types.Point{X: cw / 2, Y: ch * titleY / 100}
	if pos, ok := cfg.TitlePosition(); ok {
		p.titleAt = types.Point{X: pos.X / 100 * cw, Y: pos.Y / 100 * ch}
	}

	if in.Title != "" {
		run, err := c.fonts.Run(family, weight, titleSize, in.Title)
		if err != nil {
			return nil, err
		}
		c.warnMissing("title", run)
		p.title = &run
		p.titleBox = rect{
			X: p.titleAt.X - run.width/2 - TitlePadX*titleSize,
			Y: p.titleAt.Y - titleSize/2 - TitlePadY*titleSize,
			W: run.width + 2*TitlePadX*titleSize,
			H: titleSize + 2*TitlePadY*titleSize,
		}
	}

	if cfg.Subtitle != "" {
		p.subtitleAt = types.Point{X: p.titleAt.X, Y: p.titleAt.Y + titleSize*0.9 + subSize}
		if cfg.Position == types.PositionSplit {
			p.subtitleAt = types.Point{X: cw / 2, Y: ch * subtitleY / 100}
		}
		if pos, ok := cfg.SubtitlePosition(); ok {
			p.subtitleAt = types.Point{X: pos.X / 100 * cw, Y: pos.Y / 100 * ch}
		}

		run, err := c.fonts.Run(family, weight, subSize, cfg.Subtitle)
		if err != nil {
			return nil, err
		}
		c.warnMissing("subtitle", run)
		p.subtitle = &run
		pillH := SubtitlePillHeight * subSize
		p.subtitleBox = rect{
			X: p.subtitleAt.X - run.width/2 - SubtitlePadX*subSize,
			Y: p.subtitleAt.Y - pillH/2,
			W: run.width + 2*SubtitlePadX*subSize,
			H: pillH,
		}
	}

	for _, st := range in.Stickers {
		sp, err := c.planSticker(st, cw, ch)
		if err != nil {
			return nil, err
		}
		p.stickers = append(p.stickers, sp)
	}
	return p, nil
}

func (c *Compositor) drawTitle(canvas *image.RGBA, cfg types.LayoutConfig, p *framePlan) {
	run := p.title
	if !isTransparent(cfg.TitleBackgroundColor) {
		bg, _ := ParseColor(cfg.TitleBackgroundColor)
		fillRoundedRect(canvas, p.titleBox, TitleRadius*run.size, bg)
	}
	fill := colorOr(cfg.TextColor, white)
	shadow := colorOr(cfg.ShadowColor, black)
	drawText(canvas, *run, p.titleAt.X, p.titleAt.Y, fill, StrokeFactor*run.size, shadow)
}

func drawSubtitle(canvas *image.RGBA, cfg types.LayoutConfig, p *framePlan) {
	run := p.subtitle
	textColor, bgColor := subtitleColors(cfg)

	if !isTransparent(bgColor) {
		shadow := color.NRGBA{A: uint8(math.Round(subtitleShadowOpacity * 255))}
		fillPill(canvas, p.subtitleBox.offset(SubtitleShadowOffset, SubtitleShadowOffset), shadow)
		bg, _ := ParseColor(bgColor)
		fillPill(canvas, p.subtitleBox, bg)
	}
	drawText(canvas, *run, p.subtitleAt.X, p.subtitleAt.Y, colorOr(textColor, white), 0, nil)
}

// subtitleColors applies the complementary pairing for configs that leave
// the subtitle colours unset.
func subtitleColors(cfg types.LayoutConfig) (string, string) {
	textColor, bgColor := cfg.SubtitleColor, cfg.SubtitleBackgroundColor
	shadow := cfg.ShadowColor
	if shadow == "" {
		shadow = "#000000"
	}
	whiteTitle := cfg.TextColor == "" || types.IsWhite(cfg.TextColor)
	if textColor == "" {
		if whiteTitle {
			textColor = "#ffffff"
		} else {
			textColor = shadow
		}
	}
	if bgColor == "" {
		if whiteTitle {
			bgColor = shadow
		} else {
			bgColor = "#ffffff"
		}
	}
	return textColor, bgColor
}
