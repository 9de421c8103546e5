// Package session owns all mutable state of one cover-editing session and
// moves it between phases through explicit transition methods.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/menta2k/cover-studio/internal/logging"
	"github.com/menta2k/cover-studio/pkg/animation"
	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/compositor"
	"github.com/menta2k/cover-studio/pkg/cropper"
	"github.com/menta2k/cover-studio/pkg/layout"
	"github.com/menta2k/cover-studio/pkg/overlay"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
	"github.com/menta2k/cover-studio/pkg/upload"
)

// State is the top-level application phase.
type State int

const (
	Idle State = iota
	Cropping
	Analyzing
	Editing
	Animating
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Cropping:
		return "cropping"
	case Analyzing:
		return "analyzing"
	case Editing:
		return "editing"
	case Animating:
		return "animating"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition is returned for an operation the current state
	// does not permit.
	ErrInvalidTransition = errors.New("session: invalid transition")
	// ErrBusy is returned when an operation of the same class is in flight.
	ErrBusy = errors.New("session: operation already in progress")
	// ErrStale is returned by an operation whose session was reset, or
	// whose inputs were replaced, while it ran. Its result is discarded.
	ErrStale = errors.New("session: reset while operation was running")
	// ErrNoTitle is returned when generating a layout without a title.
	ErrNoTitle = errors.New("session: title is required")
	// ErrNoCrop is returned when generating a layout before a crop was confirmed.
	ErrNoCrop = errors.New("session: crop not confirmed")
)

// findFrame is the saliency search behind SmartFrame.
var findFrame = cropper.FindFrame

// Config tunes a session.
type Config struct {
	Cropper          cropper.CropConfig
	ViewportLongEdge float64 // crop window long edge in container pixels
	Overlay          overlay.Options
	Encode           compositor.EncodeOptions
}

// DefaultConfig returns session defaults.
func DefaultConfig() Config {
	return Config{
		Cropper:          cropper.DefaultConfig(),
		ViewportLongEdge: 400,
		Encode:           compositor.EncodeOptions{Quality: 92},
	}
}

// Deps are the collaborators a session drives. Nil members get defaults:
// a validator with default limits, a compositor on the embedded fonts, a
// layout generator that always yields the fallback and no animation backend.
type Deps struct {
	Validator  *upload.Validator
	Compositor *compositor.Compositor
	Layout     *layout.Generator
	Animation  *animation.Runner
}

// Session is the single controller of one editing session. All methods
// are safe for concurrent use.
type Session struct {
	mu  sync.Mutex
	cfg Config

	validator  *upload.Validator
	compositor *compositor.Compositor
	generator  *layout.Generator
	animator   *animation.Runner

	layoutGate *semaphore.Weighted
	animGate   *semaphore.Weighted
	snapshot   *compositor.Snapshot
	overlay    *overlay.Controller

	state    State
	epoch    uint64
	cancelOp context.CancelFunc

	source     image.Image
	sourceInfo upload.ImageInfo
	cropper    *cropper.Engine
	cropped    *cropper.Result
	title      string
	filter     string
	layout     *types.LayoutConfig
	stickers   *scene.Stickers
	video      *animation.Result
	err        error
}

// New creates an idle session.
func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.ViewportLongEdge <= 0 {
		cfg.ViewportLongEdge = DefaultConfig().ViewportLongEdge
	}
	if deps.Validator == nil {
		deps.Validator = upload.New()
	}
	if deps.Compositor == nil {
		c, err := compositor.New(nil, compositor.Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to create compositor: %w", err)
		}
		deps.Compositor = c
	}
	if deps.Layout == nil {
		deps.Layout = layout.NewGenerator(nil, layout.DefaultOptions())
	}

	s := &Session{
		cfg:        cfg,
		validator:  deps.Validator,
		compositor: deps.Compositor,
		generator:  deps.Layout,
		animator:   deps.Animation,
		layoutGate: semaphore.NewWeighted(1),
		animGate:   semaphore.NewWeighted(1),
		snapshot:   compositor.NewSnapshot(cfg.Encode),
		overlay:    overlay.NewController(cfg.Overlay),
		stickers:   scene.NewStickers(),
		cropper:    cropper.NewWithConfig(cfg.Cropper),
	}
	return s, nil
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, op, s.state)
}

func (s *Session) in(states ...State) bool {
	for _, st := range states {
		if s.state == st {
			return true
		}
	}
	return false
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session into Error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Message returns a human-readable description of the current error.
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errorMessage(s.err)
}

func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, client.ErrNeedsCredential):
		return "The service needs a valid API key. Add one and try again."
	case errors.Is(err, client.ErrTransient):
		return "The service is temporarily unavailable. Please try again."
	default:
		return err.Error()
	}
}

// fail moves the session into Error. The caller holds mu.
func (s *Session) fail(err error) {
	s.state = Error
	s.err = err
	logging.Printf("session error: %v", err)
}

// Reset drops everything and returns to Idle. In-flight operations are
// canceled and their results discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelOp != nil {
		s.cancelOp()
		s.cancelOp = nil
	}
	s.epoch++
	s.state = Idle
	s.source = nil
	s.sourceInfo = upload.ImageInfo{}
	s.cropper = cropper.NewWithConfig(s.cfg.Cropper)
	s.cropped = nil
	s.title = ""
	s.filter = ""
	s.layout = nil
	s.stickers.Clear()
	s.video = nil
	s.err = nil
	s.overlay.Cancel()
	s.snapshot.Clear()
}

// Upload validates a selected file and starts cropping it. Validation
// errors are returned as *upload.ValidationError and leave the session
// unchanged.
func (s *Session) Upload(data []byte, mime string) (upload.ImageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.in(Analyzing, Animating) {
		return upload.ImageInfo{}, s.invalid("upload")
	}

	img, info, err := s.validator.Validate(data, mime)
	if err != nil {
		return upload.ImageInfo{}, err
	}

	engine := cropper.NewWithConfig(s.cfg.Cropper)
	if err := engine.Load(img); err != nil {
		return upload.ImageInfo{}, err
	}
	if err := engine.SetAspectRatio(s.cropper.AspectRatio()); err != nil {
		return upload.ImageInfo{}, err
	}
	if err := engine.SetViewport(cropper.ViewportFor(engine.AspectRatio(), s.cfg.ViewportLongEdge)); err != nil {
		return upload.ImageInfo{}, err
	}

	s.source = img
	s.sourceInfo = info
	s.cropper = engine
	s.cropped = nil
	s.layout = nil
	s.stickers.Clear()
	s.video = nil
	s.err = nil
	s.overlay.Cancel()
	s.snapshot.Clear()
	s.state = Cropping
	logging.Printf("loaded %dx%d %s (%d bytes)", info.Width, info.Height, info.MimeType, info.Bytes)
	return info, nil
}

// SetAspectRatio changes the crop window shape and resets pan and zoom.
func (s *Session) SetAspectRatio(r types.AspectRatio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping) {
		return s.invalid("set aspect ratio")
	}
	if err := s.cropper.SetAspectRatio(r); err != nil {
		return err
	}
	s.cropped = nil
	return nil
}

// SetViewport sets the rendered crop window size.
func (s *Session) SetViewport(size types.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping) {
		return s.invalid("set viewport")
	}
	return s.cropper.SetViewport(size)
}

// SetZoom sets the crop zoom.
func (s *Session) SetZoom(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping) {
		return s.invalid("zoom")
	}
	if err := s.cropper.SetScale(v); err != nil {
		return err
	}
	s.cropped = nil
	return nil
}

// PanBy accumulates a crop drag in container pixels.
func (s *Session) PanBy(delta types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping) {
		return s.invalid("pan")
	}
	if err := s.cropper.Pan(delta); err != nil {
		return err
	}
	s.cropped = nil
	return nil
}

// SmartFrame pans the crop window over the most salient region. The
// analysis runs without the session lock; if the source, ratio or session
// changed meanwhile the result is dropped with ErrStale.
func (s *Session) SmartFrame(ctx context.Context) (cropper.Transform, error) {
	s.mu.Lock()
	if !s.in(Cropping) {
		err := s.invalid("smart frame")
		s.mu.Unlock()
		return cropper.Transform{}, err
	}
	engine, epoch := s.cropper, s.epoch
	img, ratio := engine.Image(), engine.AspectRatio()
	s.mu.Unlock()

	crop, err := findFrame(ctx, img, ratio)
	if err != nil {
		return cropper.Transform{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || !s.in(Cropping) || s.cropper != engine || engine.AspectRatio() != ratio {
		return cropper.Transform{}, ErrStale
	}
	t, err := s.cropper.FrameOn(crop)
	if err != nil {
		return cropper.Transform{}, err
	}
	s.cropped = nil
	return t, nil
}

// CropTransform returns the current pan and zoom.
func (s *Session) CropTransform() cropper.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cropper.Transform()
}

// AspectRatio returns the selected crop ratio.
func (s *Session) AspectRatio() types.AspectRatio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cropper.AspectRatio()
}

// ConfirmCrop commits the crop. The session stays in Cropping until a
// layout is generated.
func (s *Session) ConfirmCrop() (*cropper.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping) {
		return nil, s.invalid("confirm crop")
	}
	res, err := s.cropper.Commit()
	if err != nil {
		return nil, err
	}
	s.cropped = res
	b := res.Image.Bounds()
	logging.Printf("crop committed: %dx%d from %.0fx%.0f at (%.0f,%.0f)",
		b.Dx(), b.Dy(), res.SourceRect.W, res.SourceRect.H, res.SourceRect.X, res.SourceRect.Y)
	return res, nil
}

// Cropped returns the committed crop, or nil.
func (s *Session) Cropped() *cropper.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cropped
}

// GenerateLayout asks the layout service for a layout of the cropped
// image. Only one request runs at a time. Credential failures move the
// session into Error and leave any previous layout untouched; other
// service failures produce the fallback layout.
func (s *Session) GenerateLayout(ctx context.Context) (types.LayoutConfig, error) {
	if !s.layoutGate.TryAcquire(1) {
		return types.LayoutConfig{}, ErrBusy
	}
	defer s.layoutGate.Release(1)

	s.mu.Lock()
	if !s.in(Cropping, Editing, Complete, Error) {
		err := s.invalid("generate layout")
		s.mu.Unlock()
		return types.LayoutConfig{}, err
	}
	if s.cropped == nil {
		s.mu.Unlock()
		return types.LayoutConfig{}, ErrNoCrop
	}
	if s.title == "" {
		s.mu.Unlock()
		return types.LayoutConfig{}, ErrNoTitle
	}
	img, title, filter := s.cropped.Image, s.title, s.filter
	epoch := s.epoch
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelOp = cancel
	s.overlay.Cancel()
	s.state = Analyzing
	s.mu.Unlock()

	cfg, err := s.generator.Generate(ctx, img, title, filter)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return types.LayoutConfig{}, ErrStale
	}
	s.cancelOp = nil
	if err != nil {
		s.fail(err)
		return types.LayoutConfig{}, err
	}

	s.layout = &cfg
	s.err = nil
	s.state = Editing
	return cfg.Clone(), nil
}

// Regenerate replaces the current layout wholesale with a fresh one.
func (s *Session) Regenerate(ctx context.Context) (types.LayoutConfig, error) {
	s.mu.Lock()
	ok := s.in(Editing, Complete) && s.layout != nil
	err := s.invalid("regenerate")
	s.mu.Unlock()
	if !ok {
		return types.LayoutConfig{}, err
	}
	return s.GenerateLayout(ctx)
}

// Retry recovers from Error: it re-enters layout generation when a
// cropped image and title exist, and resets otherwise.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Error {
		err := s.invalid("retry")
		s.mu.Unlock()
		return err
	}
	canRegenerate := s.cropped != nil && s.title != ""
	s.mu.Unlock()

	if !canRegenerate {
		s.Reset()
		return nil
	}
	_, err := s.GenerateLayout(ctx)
	return err
}

// Animate renders the current frame at full resolution and turns it into
// a video. Only one animation runs at a time.
func (s *Session) Animate(ctx context.Context, progress animation.Progress) (*animation.Result, error) {
	if !s.animGate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.animGate.Release(1)

	s.mu.Lock()
	if !s.in(Editing, Complete) || s.layout == nil {
		err := s.invalid("animate")
		s.mu.Unlock()
		return nil, err
	}
	if s.animator == nil {
		s.mu.Unlock()
		return nil, client.NewError(client.Permanent, "animation", errors.New("no animation backend configured"))
	}
	frame, err := s.renderLocked(0, 0)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var buf bytes.Buffer
	if err := compositor.Encode(&buf, frame, compositor.PNG, s.cfg.Encode); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req := client.AnimationRequest{
		Prompt:      s.layout.VeoPrompt,
		Image:       buf.Bytes(),
		MimeType:    compositor.PNG.MimeType(),
		AspectRatio: animation.WireAspect(s.cropped.AspectRatio),
	}
	epoch := s.epoch
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelOp = cancel
	s.overlay.Cancel()
	s.state = Animating
	s.mu.Unlock()

	res, err := s.animator.Run(ctx, req, progress)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, ErrStale
	}
	s.cancelOp = nil
	if err != nil {
		s.video = nil
		s.fail(err)
		return nil, err
	}
	s.video = res
	s.err = nil
	s.state = Complete
	return res, nil
}

// Video returns the last finished animation, or nil.
func (s *Session) Video() *animation.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}
