package cropper

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	"github.com/menta2k/cover-studio/pkg/coords"
	"github.com/menta2k/cover-studio/pkg/types"
)

// analysisEdge bounds the image size handed to the saliency analyzer.
const analysisEdge = 512

// resizer implements the smartcrop.Resizer interface on top of imaging.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

// SmartFrame pans the image so the most salient region of the target
// ratio sits in the middle of the crop window. The current zoom is kept.
// It is never applied implicitly; callers opt in.
func (e *Engine) SmartFrame(ctx context.Context) (Transform, error) {
	if err := e.canFrame(); err != nil {
		return Transform{}, err
	}
	crop, err := FindFrame(ctx, e.img, e.ratio)
	if err != nil {
		return Transform{}, err
	}
	return e.FrameOn(crop)
}

// FindFrame returns the most salient region of img with the given ratio,
// in img's pixel space. It only reads img, so callers may run it without
// holding whatever guards the engine.
func FindFrame(ctx context.Context, img image.Image, ratio types.AspectRatio) (image.Rectangle, error) {
	if img == nil {
		return image.Rectangle{}, ErrNoImage
	}
	return findBestCrop(ctx, img, ratio)
}

// FrameOn pans so crop is centred in the window, as found by FindFrame on
// the loaded image.
func (e *Engine) FrameOn(crop image.Rectangle) (Transform, error) {
	if err := e.canFrame(); err != nil {
		return Transform{}, err
	}

	natural := e.NaturalSize()
	base := coords.CoverFit(e.viewport, natural)
	k := natural.W / base.W
	s := e.transform.Scale
	center := types.Point{
		X: float64(crop.Min.X+crop.Max.X)/2 - float64(e.img.Bounds().Min.X),
		Y: float64(crop.Min.Y+crop.Max.Y)/2 - float64(e.img.Bounds().Min.Y),
	}

	e.transform.Pan = types.Point{
		X: -(center.X - natural.W/2) * s / k,
		Y: -(center.Y - natural.H/2) * s / k,
	}
	e.clampPan()
	e.state = Interacting
	return e.transform, nil
}

func (e *Engine) canFrame() error {
	if e.img == nil {
		return ErrNoImage
	}
	if e.viewport.Empty() {
		return ErrNoViewport
	}
	return nil
}

// findBestCrop runs smartcrop on a down-scaled copy and maps the answer back
// into the source's pixel space.
func findBestCrop(ctx context.Context, img image.Image, ratio types.AspectRatio) (image.Rectangle, error) {
	b := img.Bounds()
	small := img
	factor := 1.0
	if long := math.Max(float64(b.Dx()), float64(b.Dy())); long > analysisEdge {
		factor = long / analysisEdge
		small = imaging.Resize(img, int(float64(b.Dx())/factor), int(float64(b.Dy())/factor), imaging.Box)
	}

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		analyzer := smartcrop.NewAnalyzer(&resizer{resampler: imaging.Lanczos})
		crop, err := analyzer.FindBestCrop(small, ratio.Width*100, ratio.Height*100)
		resultChan <- cropResult{crop: crop, err: err}
	}()

	select {
	case <-ctx.Done():
		return image.Rectangle{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return image.Rectangle{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		sb := small.Bounds()
		r := result.crop.Sub(sb.Min)
		return image.Rect(
			b.Min.X+int(float64(r.Min.X)*factor),
			b.Min.Y+int(float64(r.Min.Y)*factor),
			b.Min.X+int(float64(r.Max.X)*factor),
			b.Min.Y+int(float64(r.Max.Y)*factor),
		), nil
	}
}
