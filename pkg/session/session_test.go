package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cover-studio/pkg/animation"
	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/compositor"
	"github.com/menta2k/cover-studio/pkg/cropper"
	"github.com/menta2k/cover-studio/pkg/layout"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
	"github.com/menta2k/cover-studio/pkg/upload"
)

type fakeLayout struct {
	mu      sync.Mutex
	gen     *types.GeneratedLayout
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeLayout) GenerateLayout(ctx context.Context, req client.LayoutRequest) (*types.GeneratedLayout, error) {
	f.mu.Lock()
	f.calls++
	gen, err := f.gen, f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return gen, err
}

func (f *fakeLayout) set(gen *types.GeneratedLayout, err error) {
	f.mu.Lock()
	f.gen, f.err = gen, err
	f.mu.Unlock()
}

type fakeAnimation struct {
	req client.AnimationRequest
	err error
}

func (f *fakeAnimation) CreateJob(_ context.Context, req client.AnimationRequest) (client.JobID, error) {
	f.req = req
	return "job", f.err
}

func (f *fakeAnimation) PollJob(context.Context, client.JobID) (client.JobStatus, error) {
	return client.JobStatus{Done: true, URI: "mem://clip"}, nil
}

func (f *fakeAnimation) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("clip")), nil
}

// halves returns a PNG whose left half is red and right half blue.
func halves(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.NRGBA{B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newSession(t *testing.T, lc client.LayoutClient, ac client.AnimationClient) *Session {
	t.Helper()
	deps := Deps{Layout: layout.NewGenerator(lc, layout.DefaultOptions())}
	if ac != nil {
		r := animation.NewRunner(ac, t.TempDir())
		r.PollInterval = time.Millisecond
		deps.Animation = r
	}
	s, err := New(DefaultConfig(), deps)
	require.NoError(t, err)
	return s
}

func bottomLayout() *types.GeneratedLayout {
	return &types.GeneratedLayout{
		Subtitle:    "Fit check",
		TextColor:   "#ffffff",
		ShadowColor: "#000000",
		Position:    "bottom",
		FontStyle:   "bold",
		VeoPrompt:   "slow pan",
	}
}

// editing drives a fresh session to Editing with a 1:1 crop.
func editing(t *testing.T, lc *fakeLayout, ac client.AnimationClient) *Session {
	t.Helper()
	s := newSession(t, lc, ac)
	_, err := s.Upload(halves(t, 200, 100), "image/png")
	require.NoError(t, err)
	require.NoError(t, s.SetAspectRatio(types.Ratio1x1))
	_, err = s.ConfirmCrop()
	require.NoError(t, err)
	require.NoError(t, s.SetTitle("OOTD"))
	_, err = s.GenerateLayout(context.Background())
	require.NoError(t, err)
	require.Equal(t, Editing, s.State())
	return s
}

func TestScenarioA(t *testing.T) {
	s := newSession(t, nil, nil)

	_, err := s.Upload(halves(t, 2000, 1000), "image/png")
	require.NoError(t, err)
	assert.Equal(t, Cropping, s.State())

	require.NoError(t, s.SetAspectRatio(types.Ratio1x1))
	require.NoError(t, s.SetZoom(1.0))

	res, err := s.ConfirmCrop()
	require.NoError(t, err)
	b := res.Image.Bounds()
	assert.Equal(t, b.Dx(), b.Dy())
	assert.InDelta(t, 500, res.SourceRect.X, 1e-9)
	assert.InDelta(t, 0, res.SourceRect.Y, 1e-9)
	assert.InDelta(t, 1000, res.SourceRect.W, 1e-9)
	assert.InDelta(t, 1000, res.SourceRect.H, 1e-9)

	// centre region: left half red, right half blue
	left := res.Image.NRGBAAt(b.Dx()/4, b.Dy()/2)
	right := res.Image.NRGBAAt(3*b.Dx()/4, b.Dy()/2)
	assert.Greater(t, left.R, uint8(200))
	assert.Greater(t, right.B, uint8(200))
}

func TestScenarioB(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)

	cfg, ok := s.Layout()
	require.True(t, ok)
	title, _ := cfg.TitlePosition()
	sub, _ := cfg.SubtitlePosition()
	assert.Equal(t, types.Point{X: 50, Y: 80}, title)
	assert.Equal(t, types.Point{X: 50, Y: 90}, sub)
}

func TestScenarioC(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)

	_, err := s.AddSticker(types.StickerEmoji, "🔥")
	assert.ErrorIs(t, err, compositor.ErrMissingGlyphs)
	assert.Empty(t, s.Stickers())

	st, err := s.AddSticker(types.StickerEmoji, "★")
	require.NoError(t, err)

	container := types.Size{W: 400, H: 400}
	require.NoError(t, s.PointerDown(1, types.Point{X: 200, Y: 200}, scene.StickerElement(st.ID)))
	assert.True(t, s.PointerMove(1, types.Point{X: 300, Y: 200}, container))
	s.PointerUp(1)
	assert.False(t, s.PointerMove(1, types.Point{X: 350, Y: 200}, container))

	got := s.Stickers()[0]
	assert.InDelta(t, 75, got.X, 1e-9)
	assert.InDelta(t, 50, got.Y, 1e-9)
}

func TestSmartFrame(t *testing.T) {
	s := newSession(t, nil, nil)
	_, err := s.SmartFrame(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Upload(halves(t, 400, 200), "image/png")
	require.NoError(t, err)
	require.NoError(t, s.SetAspectRatio(types.Ratio1x1))

	tr, err := s.SmartFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tr, s.CropTransform())
}

// blockFrame swaps the saliency search for one that waits on release.
func blockFrame(t *testing.T) (started, release chan struct{}) {
	started, release = make(chan struct{}), make(chan struct{})
	orig := findFrame
	findFrame = func(ctx context.Context, img image.Image, ratio types.AspectRatio) (image.Rectangle, error) {
		close(started)
		<-release
		return orig(ctx, img, ratio)
	}
	t.Cleanup(func() { findFrame = orig })
	return started, release
}

func TestSmartFrameRunsUnlocked(t *testing.T) {
	s := newSession(t, nil, nil)
	_, err := s.Upload(halves(t, 400, 200), "image/png")
	require.NoError(t, err)
	started, release := blockFrame(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.SmartFrame(context.Background())
		done <- err
	}()
	<-started

	// the session stays usable while the analysis runs
	require.NoError(t, s.SetZoom(1.5))
	assert.Equal(t, Cropping, s.State())

	close(release)
	require.NoError(t, <-done)
	assert.InDelta(t, 1.5, s.CropTransform().Scale, 1e-9)
}

func TestSmartFrameStale(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, s *Session)
	}{
		{"ratio", func(t *testing.T, s *Session) { require.NoError(t, s.SetAspectRatio(types.Ratio9x16)) }},
		{"reset", func(t *testing.T, s *Session) { s.Reset() }},
		{"upload", func(t *testing.T, s *Session) {
			_, err := s.Upload(halves(t, 300, 300), "image/png")
			require.NoError(t, err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, nil, nil)
			_, err := s.Upload(halves(t, 400, 200), "image/png")
			require.NoError(t, err)
			require.NoError(t, s.SetAspectRatio(types.Ratio1x1))
			started, release := blockFrame(t)

			done := make(chan error, 1)
			go func() {
				_, err := s.SmartFrame(context.Background())
				done <- err
			}()
			<-started
			tt.change(t, s)
			close(release)

			assert.ErrorIs(t, <-done, ErrStale)
			assert.Equal(t, cropper.Identity, s.CropTransform())
		})
	}
}

func TestUploadValidationLeavesStateUnchanged(t *testing.T) {
	s := newSession(t, nil, nil)

	_, err := s.Upload([]byte("%PDF"), "application/pdf")
	assert.True(t, upload.IsValidationError(err))
	assert.Equal(t, Idle, s.State())

	_, err = s.Upload(make([]byte, upload.MaxBytes+1), "image/png")
	var ve *upload.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, upload.ReasonSize, ve.Reason)
	assert.Equal(t, Idle, s.State())
}

func TestInvalidTransitions(t *testing.T) {
	s := newSession(t, nil, nil)

	assert.ErrorIs(t, s.SetZoom(1), ErrInvalidTransition)
	assert.ErrorIs(t, s.SetSubtitle("x"), ErrInvalidTransition)
	_, err := s.ConfirmCrop()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.GenerateLayout(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Export(compositor.PNG)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.Retry(context.Background()), ErrInvalidTransition)

	_, err = s.Upload(halves(t, 40, 40), "image/png")
	require.NoError(t, err)
	_, err = s.GenerateLayout(context.Background())
	assert.ErrorIs(t, err, ErrNoCrop)

	_, err = s.ConfirmCrop()
	require.NoError(t, err)
	_, err = s.GenerateLayout(context.Background())
	assert.ErrorIs(t, err, ErrNoTitle)

	assert.ErrorIs(t, s.SetZoom(4), cropper.ErrScaleOutOfRange)
}

func TestCropChangeInvalidatesCommit(t *testing.T) {
	s := newSession(t, nil, nil)
	_, err := s.Upload(halves(t, 40, 40), "image/png")
	require.NoError(t, err)
	_, err = s.ConfirmCrop()
	require.NoError(t, err)
	require.NotNil(t, s.Cropped())

	require.NoError(t, s.PanBy(types.Point{X: 5}))
	assert.Nil(t, s.Cropped())
}

func TestGenerateLayoutFallback(t *testing.T) {
	s := editing(t, &fakeLayout{err: client.NewError(client.Transient, "t", errors.New("503"))}, nil)

	cfg, ok := s.Layout()
	require.True(t, ok)
	assert.Equal(t, layout.FallbackSubtitle, cfg.Subtitle)
	assert.Equal(t, types.PositionBottom, cfg.Position)
}

func TestCredentialFailureKeepsPriorLayout(t *testing.T) {
	lc := &fakeLayout{gen: bottomLayout()}
	s := editing(t, lc, nil)
	before, _ := s.Layout()

	lc.set(nil, client.NewError(client.NeedsCredential, "t", errors.New("401")))
	_, err := s.Regenerate(context.Background())
	assert.ErrorIs(t, err, client.ErrNeedsCredential)
	assert.Equal(t, Error, s.State())
	assert.Contains(t, s.Message(), "API key")

	after, ok := s.Layout()
	require.True(t, ok)
	assert.Equal(t, before, after)

	// retry with a working key regenerates from the kept crop and title
	lc.set(&types.GeneratedLayout{Subtitle: "Again", Position: "top"}, nil)
	require.NoError(t, s.Retry(context.Background()))
	assert.Equal(t, Editing, s.State())
	cfg, _ := s.Layout()
	assert.Equal(t, "Again", cfg.Subtitle)
	assert.NoError(t, s.Err())
}

func TestRetryWithoutContextResets(t *testing.T) {
	lc := &fakeLayout{err: client.NewError(client.NeedsCredential, "t", errors.New("401"))}
	s := newSession(t, lc, nil)
	_, err := s.Upload(halves(t, 40, 40), "image/png")
	require.NoError(t, err)
	_, err = s.ConfirmCrop()
	require.NoError(t, err)
	require.NoError(t, s.SetTitle("x"))
	_, err = s.GenerateLayout(context.Background())
	require.Error(t, err)
	require.Equal(t, Error, s.State())

	// drop the crop so there is nothing to regenerate from
	s.mu.Lock()
	s.cropped = nil
	s.mu.Unlock()

	require.NoError(t, s.Retry(context.Background()))
	assert.Equal(t, Idle, s.State())
}

func TestGenerateLayoutSingleFlight(t *testing.T) {
	lc := &fakeLayout{gen: bottomLayout(), started: make(chan struct{}), release: make(chan struct{})}
	s := newSession(t, lc, nil)
	_, err := s.Upload(halves(t, 40, 40), "image/png")
	require.NoError(t, err)
	_, err = s.ConfirmCrop()
	require.NoError(t, err)
	require.NoError(t, s.SetTitle("x"))

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateLayout(context.Background())
		done <- err
	}()
	<-lc.started
	assert.Equal(t, Analyzing, s.State())

	_, err = s.GenerateLayout(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.SetTitle("y"), ErrInvalidTransition)

	close(lc.release)
	require.NoError(t, <-done)
	assert.Equal(t, Editing, s.State())
	assert.Equal(t, 1, lc.calls)
}

func TestResetDuringGeneration(t *testing.T) {
	lc := &fakeLayout{gen: bottomLayout(), started: make(chan struct{}), release: make(chan struct{})}
	s := newSession(t, lc, nil)
	_, err := s.Upload(halves(t, 40, 40), "image/png")
	require.NoError(t, err)
	_, err = s.ConfirmCrop()
	require.NoError(t, err)
	require.NoError(t, s.SetTitle("x"))

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateLayout(context.Background())
		done <- err
	}()
	<-lc.started
	s.Reset()

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, Idle, s.State())
	_, ok := s.Layout()
	assert.False(t, ok)
}

func TestEditing(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)

	require.NoError(t, s.SetSubtitle("New sub"))
	require.NoError(t, s.SetColor(TitleBackground, "#F00"))
	assert.Error(t, s.SetColor(TextColor, "reddish"))
	require.NoError(t, s.SetTitleScale(1.5))
	assert.Error(t, s.SetTitleScale(9))
	require.NoError(t, s.SetFontStyle(types.FontHandwritten))
	require.NoError(t, s.SetFilter("grayscale(1)"))
	assert.Error(t, s.SetFilter("hue-rotate(30)"))
	assert.Error(t, s.SetFontFamily("Comic Sans"))
	require.NoError(t, s.SetFontFamily(scene.FamilySmallcaps))
	require.NoError(t, s.MoveElement(scene.Title, types.Point{X: 10, Y: 20}))

	cfg, _ := s.Layout()
	assert.Equal(t, "New sub", cfg.Subtitle)
	assert.Equal(t, "#ff0000", cfg.TitleBackgroundColor)
	assert.Equal(t, 1.5, cfg.Scale)
	assert.Equal(t, types.FontHandwritten, cfg.FontStyle)
	assert.Equal(t, scene.FamilySmallcaps, cfg.FontFamily)
	assert.Equal(t, scene.WeightNormal, cfg.FontWeight)
	assert.Equal(t, "grayscale(1)", cfg.Filter)
	p, _ := cfg.TitlePosition()
	assert.Equal(t, types.Point{X: 10, Y: 20}, p)
}

func TestStickerOps(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)

	st, err := s.AddSticker(types.StickerText, "SALE")
	require.NoError(t, err)
	for i := 0; i < 60; i++ {
		_, err = s.ScaleSticker(st.ID, true)
		require.NoError(t, err)
	}
	assert.Equal(t, scene.StickerMaxScale, s.Stickers()[0].Scale)

	require.NoError(t, s.RotateSticker(st.ID, 90))
	assert.Equal(t, 90.0, s.Stickers()[0].Rotation)
	require.NoError(t, s.RotateSticker(st.ID, 30))
	assert.Equal(t, 30.0, s.Stickers()[0].Rotation, "rotation is set, not accumulated")

	require.NoError(t, s.RemoveSticker(st.ID))
	assert.Empty(t, s.Stickers())
	assert.ErrorIs(t, s.RemoveSticker(st.ID), scene.ErrStickerNotFound)
}

func TestPointerDownAtHitsTopmost(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)
	st, err := s.AddSticker(types.StickerText, "HOT")
	require.NoError(t, err)

	container := types.Size{W: 200, H: 200}
	id, err := s.PointerDownAt(7, types.Point{X: 100, Y: 100}, container)
	require.NoError(t, err)
	assert.Equal(t, scene.StickerElement(st.ID), id)
	s.PointerLeave(7)

	_, err = s.PointerDownAt(7, types.Point{X: 1, Y: 1}, container)
	assert.Error(t, err)
}

func TestExportMatchesRender(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)

	_, err := s.ImageBytes()
	assert.ErrorIs(t, err, compositor.ErrNoCanvas)

	frame, err := s.Render(0, 0)
	require.NoError(t, err)
	b := frame.Bounds()
	assert.Equal(t, 1080, b.Dx())
	assert.Equal(t, 1080, b.Dy())

	blob, err := s.Export(compositor.PNG)
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.MimeType)

	decoded, err := imaging.Decode(bytes.NewReader(blob.Data))
	require.NoError(t, err)
	assert.Equal(t, imaging.Clone(frame).Pix, imaging.Clone(decoded).Pix)

	data, err := s.ImageBytes()
	require.NoError(t, err)
	assert.Equal(t, blob.Data, data)
}

func TestAnimate(t *testing.T) {
	ac := &fakeAnimation{}
	s := editing(t, &fakeLayout{gen: bottomLayout()}, ac)

	var messages []string
	res, err := s.Animate(context.Background(), func(_ int, msg string) {
		messages = append(messages, msg)
	})
	require.NoError(t, err)
	assert.Equal(t, Complete, s.State())
	assert.Equal(t, res, s.Video())
	assert.Equal(t, animation.AspectTall, ac.req.AspectRatio)
	assert.Equal(t, "slow pan", ac.req.Prompt)
	assert.Equal(t, "image/png", ac.req.MimeType)
	assert.Contains(t, messages, animation.MsgDownloading)

	// editing after completion returns to Editing
	require.NoError(t, s.SetSubtitle("v2"))
	assert.Equal(t, Editing, s.State())
}

func TestAnimateFailure(t *testing.T) {
	ac := &fakeAnimation{err: client.NewError(client.Permanent, "animation", errors.New("quota"))}
	s := editing(t, &fakeLayout{gen: bottomLayout()}, ac)

	_, err := s.Animate(context.Background(), nil)
	assert.ErrorIs(t, err, client.ErrPermanent)
	assert.Equal(t, Error, s.State())
	assert.Nil(t, s.Video())
	assert.Contains(t, s.Message(), "quota")

	s.Reset()
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.Stickers())
}

func TestAnimateWithoutBackend(t *testing.T) {
	s := editing(t, &fakeLayout{gen: bottomLayout()}, nil)
	_, err := s.Animate(context.Background(), nil)
	assert.ErrorIs(t, err, client.ErrPermanent)
	assert.Equal(t, Editing, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "analyzing", Analyzing.String())
	assert.Equal(t, "State(42)", State(42).String())
}
