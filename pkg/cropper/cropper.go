package cropper

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/cover-studio/pkg/coords"
	"github.com/menta2k/cover-studio/pkg/types"
)

// Zoom slider bounds
const (
	MinScale = 0.5
	MaxScale = 3.0
)

var (
	// ErrScaleOutOfRange is returned by SetScale for values outside [MinScale, MaxScale].
	ErrScaleOutOfRange = errors.New("cropper: scale out of range")
	// ErrNoImage is returned when an operation needs a loaded image.
	ErrNoImage = errors.New("cropper: no image loaded")
	// ErrNoViewport is returned when the crop window size is unknown.
	ErrNoViewport = errors.New("cropper: viewport size not set")
)

// State is the crop engine lifecycle stage.
type State int

const (
	Idle State = iota
	Loaded
	Interacting
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Interacting:
		return "interacting"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CropConfig holds configuration for the crop engine
type CropConfig struct {
	OutputLongEdge int  // pixels on the longer side of the output
	JPEGQuality    int  // quality of Result.Encoded
	ClampToCover   bool // raise scales below the cover minimum instead of accepting them
	ClampPan       bool // keep the crop window inside the image while panning
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() CropConfig {
	return CropConfig{
		OutputLongEdge: 1080,
		JPEGQuality:    92,
	}
}

// Transform is the pan/zoom applied to the image inside the crop window.
type Transform struct {
	Scale float64     `json:"scale"`
	Pan   types.Point `json:"pan"`
}

// Identity is the transform every load or ratio change resets to.
var Identity = Transform{Scale: 1}

// Result contains the output of a committed crop
type Result struct {
	Image       *image.NRGBA
	Encoded     []byte // JPEG bytes of Image
	SourceRect  coords.Rect
	AspectRatio types.AspectRatio
	Transform   Transform
}

// Engine owns the pan/zoom state for one loaded image against a fixed
// target aspect ratio.
type Engine struct {
	config    CropConfig
	state     State
	img       image.Image
	ratio     types.AspectRatio
	viewport  types.Size
	transform Transform
	last      *Result
}

// New creates a new Engine with default configuration
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Engine with custom configuration
func NewWithConfig(config CropConfig) *Engine {
	if config.OutputLongEdge <= 0 {
		config.OutputLongEdge = DefaultConfig().OutputLongEdge
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = DefaultConfig().JPEGQuality
	}
	return &Engine{
		config:    config,
		ratio:     types.Ratio3x4,
		transform: Identity,
	}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State { return e.state }

// Transform returns the current pan/zoom.
func (e *Engine) Transform() Transform { return e.transform }

// AspectRatio returns the target ratio.
func (e *Engine) AspectRatio() types.AspectRatio { return e.ratio }

// Viewport returns the crop window size in container pixels.
func (e *Engine) Viewport() types.Size { return e.viewport }

// Image returns the loaded source, or nil.
func (e *Engine) Image() image.Image { return e.img }

// NaturalSize returns the loaded image's pixel size.
func (e *Engine) NaturalSize() types.Size {
	if e.img == nil {
		return types.Size{}
	}
	b := e.img.Bounds()
	return types.Size{W: float64(b.Dx()), H: float64(b.Dy())}
}

// Last returns the most recent committed result, if any.
func (e *Engine) Last() *Result { return e.last }

// Load replaces the source image and resets the transform.
func (e *Engine) Load(img image.Image) error {
	if img == nil {
		return ErrNoImage
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}
	e.img = img
	e.reset()
	return nil
}

// SetAspectRatio changes the target ratio and resets the transform. The
// viewport keeps its long edge and takes the new shape.
func (e *Engine) SetAspectRatio(r types.AspectRatio) error {
	if r.Value() <= 0 {
		return fmt.Errorf("invalid aspect ratio %v", r)
	}
	e.ratio = r
	if !e.viewport.Empty() {
		e.viewport = ViewportFor(r, math.Max(e.viewport.W, e.viewport.H))
	}
	e.reset()
	return nil
}

// SetViewport sets the crop window's size as rendered on screen.
func (e *Engine) SetViewport(size types.Size) error {
	if size.Empty() {
		return ErrNoViewport
	}
	e.viewport = size
	return nil
}

// ViewportFor returns a crop window of the ratio's shape whose longer side is long.
func ViewportFor(r types.AspectRatio, long float64) types.Size {
	v := r.Value()
	if v >= 1 {
		return types.Size{W: long, H: long / v}
	}
	return types.Size{W: long * v, H: long}
}

// OutputSize returns the fixed output resolution for a ratio.
func OutputSize(r types.AspectRatio, longEdge int) (int, int) {
	if r.Width >= r.Height {
		return longEdge, int(math.Round(float64(longEdge*r.Height) / float64(r.Width)))
	}
	return int(math.Round(float64(longEdge*r.Width) / float64(r.Height))), longEdge
}

func (e *Engine) reset() {
	e.transform = Identity
	e.last = nil
	if e.img != nil {
		e.state = Loaded
	} else {
		e.state = Idle
	}
}

// SetScale sets the zoom factor.
func (e *Engine) SetScale(v float64) error {
	if e.img == nil {
		return ErrNoImage
	}
	if math.IsNaN(v) || v < MinScale || v > MaxScale {
		return fmt.Errorf("%w: %.3f not in [%.1f, %.1f]", ErrScaleOutOfRange, v, MinScale, MaxScale)
	}
	if e.config.ClampToCover && !e.viewport.Empty() {
		v = math.Max(v, coords.MinCoverScale(e.viewport, e.NaturalSize()))
	}
	e.transform.Scale = v
	e.clampPan()
	e.state = Interacting
	return nil
}

// Pan accumulates a drag delta in container pixels.
func (e *Engine) Pan(delta types.Point) error {
	if e.img == nil {
		return ErrNoImage
	}
	e.transform.Pan = e.transform.Pan.Add(delta)
	e.clampPan()
	e.state = Interacting
	return nil
}

// SetTransform replaces the pan/zoom wholesale, applying the same rules as
// SetScale and Pan.
func (e *Engine) SetTransform(t Transform) error {
	if err := e.SetScale(t.Scale); err != nil {
		return err
	}
	e.transform.Pan = t.Pan
	e.clampPan()
	return nil
}

func (e *Engine) clampPan() {
	if !e.config.ClampPan || e.viewport.Empty() {
		return
	}
	mp := coords.MaxPan(e.viewport, e.NaturalSize(), e.transform.Scale)
	e.transform.Pan.X = math.Max(-mp.X, math.Min(mp.X, e.transform.Pan.X))
	e.transform.Pan.Y = math.Max(-mp.Y, math.Min(mp.Y, e.transform.Pan.Y))
}

// SourceRect returns the source rectangle the current transform shows.
func (e *Engine) SourceRect() (coords.Rect, error) {
	if e.img == nil {
		return coords.Rect{}, ErrNoImage
	}
	if e.viewport.Empty() {
		return coords.Rect{}, ErrNoViewport
	}
	return coords.SourceRect(e.viewport, e.NaturalSize(), e.transform.Pan, e.transform.Scale), nil
}

// Commit bakes the visible region into a fixed-resolution image. The
// transform is consumed and reset to identity.
func (e *Engine) Commit() (*Result, error) {
	rect, err := e.SourceRect()
	if err != nil {
		return nil, err
	}

	w, h := OutputSize(e.ratio, e.config.OutputLongEdge)
	out := RenderRect(e.img, rect, w, h)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(e.config.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	result := &Result{
		Image:       out,
		Encoded:     buf.Bytes(),
		SourceRect:  rect,
		AspectRatio: e.ratio,
		Transform:   e.transform,
	}
	e.transform = Identity
	e.last = result
	e.state = Committed
	return result, nil
}

// RenderRect resamples the source rectangle of img into a w x h image. Parts
// of the rectangle outside the image stay opaque white.
func RenderRect(img image.Image, rect coords.Rect, w, h int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if rect.W <= 0 || rect.H <= 0 {
		return out
	}

	b := img.Bounds()
	kx := float64(w) / rect.W
	ky := float64(h) / rect.H
	// source pixel space to output pixel space
	s2d := f64.Aff3{
		kx, 0, -(float64(b.Min.X) + rect.X) * kx,
		0, ky, -(float64(b.Min.Y) + rect.Y) * ky,
	}
	xdraw.CatmullRom.Transform(out, s2d, img, b, xdraw.Over, nil)
	return out
}
