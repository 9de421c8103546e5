package layout

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/cover-studio/internal/logging"
	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/processing"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
)

// Fallback values used when the layout service fails.
const (
	FallbackSubtitle  = "爆款封面"
	FallbackVeoPrompt = "Slow cinematic push-in with gentle parallax, soft light flicker, subtle particle drift, smooth loop"
)

// Fallback returns the fixed layout answer substituted for a failed call.
func Fallback() types.GeneratedLayout {
	return types.GeneratedLayout{
		Subtitle:             FallbackSubtitle,
		TextColor:            "#ffffff",
		ShadowColor:          "#000000",
		Position:             string(types.PositionBottom),
		FontStyle:            string(types.FontBold),
		TitleBackgroundColor: types.Transparent,
		VeoPrompt:            FallbackVeoPrompt,
	}
}

// Options tunes the payload sent to the service.
type Options struct {
	SendSize int // long edge of the image sent to the model, 0 keeps the original
	Quality  int // JPEG quality of the payload
}

// DefaultOptions returns the payload defaults.
func DefaultOptions() Options {
	return Options{SendSize: 1024, Quality: 85}
}

// Generator asks a LayoutClient for a layout and applies the
// fallback/propagation policy.
type Generator struct {
	client    client.LayoutClient
	processor *processing.Processor
	opts      Options
}

// NewGenerator creates a generator. A nil client always yields the fallback.
func NewGenerator(c client.LayoutClient, opts Options) *Generator {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}
	return &Generator{client: c, processor: processing.NewProcessor(), opts: opts}
}

// Generate returns a seeded LayoutConfig for img. Credential failures and
// caller cancellation are returned as errors; every other failure yields
// the seeded fallback config.
func (g *Generator) Generate(ctx context.Context, img image.Image, title, filter string) (types.LayoutConfig, error) {
	if img == nil {
		return types.LayoutConfig{}, errors.New("layout: no image")
	}

	gen, err := g.request(ctx, img, title, filter)
	if err != nil {
		if errors.Is(err, client.ErrNeedsCredential) {
			return types.LayoutConfig{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.LayoutConfig{}, ctxErr
		}
		logging.Printf("layout generation failed (%s), using fallback: %v", client.KindOf(err), err)
		fb := Fallback()
		gen = &fb
	}

	return scene.Seed(complete(*gen), filter), nil
}

func (g *Generator) request(ctx context.Context, img image.Image, title, filter string) (*types.GeneratedLayout, error) {
	if g.client == nil {
		return nil, client.NewError(client.Permanent, "layout", errors.New("no layout backend configured"))
	}

	data, mime, err := g.processor.PrepareImageForModel(img, g.opts.SendSize, g.opts.Quality)
	if err != nil {
		return nil, client.NewError(client.Permanent, "layout", fmt.Errorf("prepare image: %w", err))
	}

	label := FilterLabel(filter)
	logging.Debugf("requesting layout: title=%q filter=%q payload=%d bytes", title, label, len(data))

	gen, err := g.client.GenerateLayout(ctx, client.LayoutRequest{
		Image:       data,
		MimeType:    mime,
		Title:       title,
		FilterLabel: label,
	})
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, client.NewError(client.Transient, "layout", errors.New("empty layout"))
	}
	return gen, nil
}

// complete fills fields the model left blank from the fallback so every
// required field is populated.
func complete(gen types.GeneratedLayout) types.GeneratedLayout {
	fb := Fallback()
	if strings.TrimSpace(gen.Subtitle) == "" {
		gen.Subtitle = fb.Subtitle
	}
	if !types.ValidColor(gen.TextColor) || types.NormalizeHex(gen.TextColor) == types.Transparent {
		gen.TextColor = fb.TextColor
	}
	if !types.ValidColor(gen.ShadowColor) || types.NormalizeHex(gen.ShadowColor) == types.Transparent {
		gen.ShadowColor = fb.ShadowColor
	}
	if strings.TrimSpace(gen.VeoPrompt) == "" {
		gen.VeoPrompt = fb.VeoPrompt
	}
	gen.Position = string(types.ParsePosition(gen.Position))
	gen.FontStyle = string(types.ParseFontStyle(gen.FontStyle))
	return gen
}
