// Package coverstudio turns a photo into a styled social-media cover.
//
// A cover is built in four steps: the photo is cropped to a fixed aspect
// ratio, a vision model proposes a subtitle, colours and placement for the
// title, the user adjusts text and stickers, and the frame is exported as a
// still image or handed to a video service for a short animation.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		coverstudio "github.com/menta2k/cover-studio"
//	)
//
//	func main() {
//		studio, err := coverstudio.New(nil) // default configuration
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		res, err := studio.Compose(context.Background(), coverstudio.ComposeRequest{
//			Source:      "photo.jpg",
//			Title:       "OOTD",
//			AspectRatio: "3:4",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("cover saved to", res.Path)
//	}
//
// The package consists of these components:
//
//  1. Coordinate mapping (pkg/coords) and crop engine (pkg/cropper)
//  2. Scene model and drag controller (pkg/scene, pkg/overlay)
//  3. Compositor with filters, text, pills and stickers (pkg/compositor)
//  4. Layout generation on Ollama or llama.cpp (pkg/layout, pkg/ollama, pkg/llamacpp)
//  5. Animation jobs (pkg/animation)
//  6. Session state machine (pkg/session)
package coverstudio

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/menta2k/cover-studio/internal/config"
	"github.com/menta2k/cover-studio/internal/logging"
	"github.com/menta2k/cover-studio/internal/utils"
	"github.com/menta2k/cover-studio/pkg/animation"
	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/compositor"
	"github.com/menta2k/cover-studio/pkg/cropper"
	"github.com/menta2k/cover-studio/pkg/layout"
	"github.com/menta2k/cover-studio/pkg/llamacpp"
	"github.com/menta2k/cover-studio/pkg/ollama"
	"github.com/menta2k/cover-studio/pkg/overlay"
	"github.com/menta2k/cover-studio/pkg/processing"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/session"
	"github.com/menta2k/cover-studio/pkg/types"
	"github.com/menta2k/cover-studio/pkg/upload"
)

// Version of the cover studio library
const Version = "1.0.0"

// Backend names used for keyring lookups.
const (
	BackendLlamaCpp  = "llamacpp"
	BackendAnimation = "animation"
)

// Studio wires configuration into sessions.
type Studio struct {
	cfg         *config.Config
	processor   *processing.Processor
	compositor  *compositor.Compositor
	credentials *client.Credentials
	layout      client.LayoutClient
	animation   client.AnimationClient
}

// Option customises a Studio.
type Option func(*Studio)

// WithLayoutClient overrides the configured layout backend.
func WithLayoutClient(c client.LayoutClient) Option {
	return func(s *Studio) { s.layout = c }
}

// WithAnimationClient overrides the configured animation backend.
func WithAnimationClient(c client.AnimationClient) Option {
	return func(s *Studio) { s.animation = c }
}

// WithCredentials replaces the keyring-backed credential resolver.
func WithCredentials(c *client.Credentials) Option {
	return func(s *Studio) { s.credentials = c }
}

// New creates a Studio from cfg.
func New(cfg *config.Config, opts ...Option) (*Studio, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Studio{
		cfg:         cfg,
		processor:   processing.NewProcessor(),
		credentials: client.NewCredentials(),
	}
	for _, opt := range opts {
		opt(s)
	}

	fonts, err := compositor.NewFontBook()
	if err != nil {
		return nil, err
	}
	for _, f := range cfg.Compositor.Fonts {
		if err := fonts.RegisterFile(f.Name, f.Regular, f.Bold, f.Display); err != nil {
			return nil, fmt.Errorf("failed to register font %s: %w", f.Name, err)
		}
		if f.Fallback {
			if err := fonts.AddFallback(f.Name); err != nil {
				return nil, err
			}
		}
	}
	if cfg.Compositor.SystemFonts {
		if added := fonts.RegisterSystemFallbacks(); len(added) > 0 {
			logging.Debugf("font fallbacks from the system: %v", added)
		}
	}
	if e := cfg.Compositor.EmojiFamily; e != "" && !fonts.Has(e) {
		return nil, fmt.Errorf("emoji family %q is not a registered font", e)
	}
	s.compositor, err = compositor.New(fonts, compositor.Options{
		EmojiFamily:  cfg.Compositor.EmojiFamily,
		StickerColor: cfg.Compositor.StickerColor,
	})
	if err != nil {
		return nil, err
	}

	if s.layout == nil {
		if s.layout, err = s.newLayoutClient(); err != nil {
			return nil, err
		}
	}
	if s.animation == nil && cfg.Animation.URL != "" {
		creds := s.credentials
		s.animation, err = animation.NewHTTPClient(cfg.Animation.URL,
			animation.WithKeySource(func() (string, error) {
				return creds.Require("animation", BackendAnimation)
			}))
		if err != nil {
			return nil, fmt.Errorf("failed to create animation client: %w", err)
		}
	}
	return s, nil
}

func (s *Studio) newLayoutClient() (client.LayoutClient, error) {
	lc := s.cfg.Layout
	timeout := time.Duration(lc.Timeout) * time.Second
	switch lc.Backend {
	case "ollama":
		hc := &http.Client{Timeout: timeout}
		c, err := ollama.NewClientWithHTTP(lc.URL, lc.Model, hc)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		opts := []llamacpp.Option{llamacpp.WithModel(lc.Model)}
		if key := s.credentials.APIKey(BackendLlamaCpp); key != "" {
			opts = append(opts, llamacpp.WithAPIKey(key))
		}
		if timeout > 0 {
			opts = append(opts, llamacpp.WithHTTPClient(&http.Client{Timeout: timeout}))
		}
		return llamacpp.NewClient(lc.URL, opts...)
	}
	return nil, nil
}

// Config returns the studio configuration.
func (s *Studio) Config() *config.Config { return s.cfg }

// Compositor returns the shared compositor.
func (s *Studio) Compositor() *compositor.Compositor { return s.compositor }

// NewSession creates an idle editing session.
func (s *Studio) NewSession() (*session.Session, error) {
	cfg := s.cfg
	sc := session.Config{
		Cropper: cropper.CropConfig{
			OutputLongEdge: cfg.Cropper.OutputLongEdge,
			JPEGQuality:    cfg.Cropper.JPEGQuality,
			ClampToCover:   cfg.Cropper.ClampToCover,
			ClampPan:       cfg.Cropper.ClampPan,
		},
		ViewportLongEdge: cfg.Cropper.ViewportLongEdge,
		Overlay:          overlay.Options{ClampToCanvas: cfg.Compositor.ClampToCanvas},
		Encode:           compositor.EncodeOptions{Quality: cfg.Output.Quality, Lossless: cfg.Output.Lossless},
	}

	deps := session.Deps{
		Validator: upload.NewWithConfig(upload.Config{
			MaxBytes:         cfg.Upload.MaxBytes,
			MinImageSize:     cfg.Upload.MinImageSize,
			SupportedFormats: cfg.Upload.SupportedFormats,
		}),
		Compositor: s.compositor,
		Layout: layout.NewGenerator(s.layout, layout.Options{
			SendSize: cfg.Layout.SendSize,
			Quality:  cfg.Layout.Quality,
		}),
	}
	if s.animation != nil {
		r := animation.NewRunner(s.animation, cfg.Output.OutputDir)
		r.PollInterval = time.Duration(cfg.Animation.PollInterval) * time.Second
		r.MaxPollErrors = cfg.Animation.MaxPollErrors
		deps.Animation = r
	}
	return session.New(sc, deps)
}

// Load reads a local path or http(s) URL.
func (s *Studio) Load(ctx context.Context, source string) ([]byte, string, error) {
	return s.processor.LoadSmart(ctx, source)
}

// SaveBlob writes an exported frame into the output directory under a
// timestamped name and returns its path.
func (s *Studio) SaveBlob(blob compositor.Blob, f compositor.Format) (string, error) {
	path := utils.OutputPath(s.cfg.Output.OutputDir, s.cfg.Output.Prefix, f.Ext(), time.Now())
	if err := processing.WriteFile(path, blob.Data); err != nil {
		return "", err
	}
	logging.Printf("cover saved to %s (%s)", path, utils.FormatFileSize(int64(len(blob.Data))))
	return path, nil
}

func (s *Studio) saveCrop(crop *cropper.Result) (string, error) {
	out := s.cfg.Output
	path := utils.OutputPath(out.OutputDir, out.Prefix+"-crop", "jpg", time.Now())
	if err := utils.EnsureDir(out.OutputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := s.processor.SaveImage(crop.Image, path, "jpg", s.cfg.Cropper.JPEGQuality, false); err != nil {
		return "", fmt.Errorf("failed to save crop: %w", err)
	}
	return path, nil
}

// StickerSpec places a sticker in a composed cover.
type StickerSpec struct {
	Type     types.StickerType
	Content  string
	X, Y     float64
	Scale    float64
	Rotation float64
}

// ComposeRequest describes a non-interactive cover run.
type ComposeRequest struct {
	Source      string // path or URL
	Title       string
	AspectRatio string
	Zoom        float64
	Pan         types.Point
	SmartFrame  bool
	Filter      string
	Stickers    []StickerSpec
	Format      string
	SaveCrop    bool // also write the committed crop next to the cover
	Animate     bool
	Progress    animation.Progress
}

// ComposeResult is what Compose produced.
type ComposeResult struct {
	Path     string
	CropPath string
	Layout   types.LayoutConfig
	Video    *animation.Result
}

// Compose runs a whole session without interaction: load, crop, generate
// a layout, add stickers, export and optionally animate.
func (s *Studio) Compose(ctx context.Context, req ComposeRequest) (*ComposeResult, error) {
	data, mime, err := s.Load(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	sess, err := s.NewSession()
	if err != nil {
		return nil, err
	}
	if _, err := sess.Upload(data, mime); err != nil {
		return nil, err
	}

	ratioName := req.AspectRatio
	if ratioName == "" {
		ratioName = s.cfg.Cropper.AspectRatio
	}
	ratio, err := types.ParseAspectRatio(ratioName)
	if err != nil {
		return nil, err
	}
	if err := sess.SetAspectRatio(ratio); err != nil {
		return nil, err
	}
	if req.Zoom != 0 {
		if err := sess.SetZoom(req.Zoom); err != nil {
			return nil, err
		}
	}
	if req.SmartFrame || s.cfg.Cropper.SmartFrame {
		if _, err := sess.SmartFrame(ctx); err != nil {
			logging.Printf("smart framing failed, keeping centre crop: %v", err)
		}
	}
	if req.Pan != (types.Point{}) {
		if err := sess.PanBy(req.Pan); err != nil {
			return nil, err
		}
	}
	crop, err := sess.ConfirmCrop()
	if err != nil {
		return nil, err
	}
	var cropPath string
	if req.SaveCrop {
		if cropPath, err = s.saveCrop(crop); err != nil {
			return nil, err
		}
	}

	if err := sess.SetTitle(req.Title); err != nil {
		return nil, err
	}
	if err := sess.SetFilter(req.Filter); err != nil {
		return nil, err
	}

	layoutCtx := ctx
	if t := s.cfg.Layout.Timeout; t > 0 {
		var cancel context.CancelFunc
		layoutCtx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}
	cfg, err := sess.GenerateLayout(layoutCtx)
	if err != nil {
		return nil, err
	}

	for _, spec := range req.Stickers {
		st, err := sess.AddSticker(spec.Type, spec.Content)
		if err != nil {
			return nil, err
		}
		if spec.X != 0 || spec.Y != 0 {
			if err := sess.MoveElement(scene.StickerElement(st.ID), types.Point{X: spec.X, Y: spec.Y}); err != nil {
				return nil, err
			}
		}
		if err := applyStickerScale(sess, st.ID, spec.Scale); err != nil {
			return nil, err
		}
		if spec.Rotation != 0 {
			if err := sess.RotateSticker(st.ID, spec.Rotation); err != nil {
				return nil, err
			}
		}
	}

	formatName := req.Format
	if formatName == "" {
		formatName = s.cfg.Output.DefaultFormat
	}
	format, err := compositor.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	blob, err := sess.Export(format)
	if err != nil {
		return nil, err
	}
	path, err := s.SaveBlob(blob, format)
	if err != nil {
		return nil, err
	}

	res := &ComposeResult{Path: path, CropPath: cropPath, Layout: cfg}
	if req.Animate {
		video, err := sess.Animate(ctx, req.Progress)
		if err != nil {
			return res, fmt.Errorf("animation failed: %w", err)
		}
		res.Video = video
	}
	if final, ok := sess.Layout(); ok {
		res.Layout = final
	}
	return res, nil
}

// applyStickerScale steps a sticker toward target one grid step at a time.
// A zero target keeps the default scale.
func applyStickerScale(sess *session.Session, id string, target float64) error {
	if target == 0 {
		return nil
	}
	target = scene.ClampStickerScale(target)
	current := 1.0
	for i := 0; i < 100 && math.Abs(current-target) > scene.StickerScaleStep/2; i++ {
		v, err := sess.ScaleSticker(id, target > current)
		if err != nil {
			return err
		}
		if v == current {
			break
		}
		current = v
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
