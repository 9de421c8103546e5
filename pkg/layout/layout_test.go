package layout

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/compositor"
	"github.com/menta2k/cover-studio/pkg/types"
)

type mockLayoutClient struct {
	mock.Mock
}

func (m *mockLayoutClient) GenerateLayout(ctx context.Context, req client.LayoutRequest) (*types.GeneratedLayout, error) {
	args := m.Called(ctx, req)
	gen, _ := args.Get(0).(*types.GeneratedLayout)
	return gen, args.Error(1)
}

func photo() image.Image {
	return imaging.New(300, 400, color.NRGBA{R: 90, G: 120, B: 200, A: 255})
}

func TestGenerateSuccess(t *testing.T) {
	m := new(mockLayoutClient)
	m.On("GenerateLayout", mock.Anything, mock.MatchedBy(func(req client.LayoutRequest) bool {
		return req.Title == "Summer" && req.FilterLabel == "Vivid" && req.MimeType == "image/jpeg" && len(req.Image) > 0
	})).Return(&types.GeneratedLayout{
		Subtitle:    "Beach days",
		TextColor:   "#FFF",
		ShadowColor: "#222222",
		Position:    "top",
		FontStyle:   "serif",
		VeoPrompt:   "waves roll in",
	}, nil).Once()

	g := NewGenerator(m, DefaultOptions())
	cfg, err := g.Generate(context.Background(), photo(), "Summer", "saturate(1.5) contrast(1.1)")
	require.NoError(t, err)
	m.AssertExpectations(t)

	assert.Equal(t, "Beach days", cfg.Subtitle)
	assert.Equal(t, "#ffffff", cfg.TextColor)
	assert.Equal(t, types.PositionTop, cfg.Position)
	assert.Equal(t, types.FontSerif, cfg.FontStyle)
	assert.Equal(t, "saturate(1.5) contrast(1.1)", cfg.Filter)
	require.NotNil(t, cfg.Y)
	assert.Equal(t, 20.0, *cfg.Y)
	require.NotNil(t, cfg.SubtitleY)
	assert.Equal(t, 30.0, *cfg.SubtitleY)
	assert.Equal(t, "#222222", cfg.SubtitleBackgroundColor)
}

func TestGenerateFallbackOnGenericFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transient", client.NewError(client.Transient, "test", errors.New("503"))},
		{"permanent", client.NewError(client.Permanent, "test", errors.New("bad json"))},
		{"unclassified", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockLayoutClient)
			m.On("GenerateLayout", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			cfg, err := NewGenerator(m, DefaultOptions()).Generate(context.Background(), photo(), "OOTD", "")
			require.NoError(t, err)

			assert.Equal(t, FallbackSubtitle, cfg.Subtitle)
			assert.Equal(t, "#ffffff", cfg.TextColor)
			assert.Equal(t, "#000000", cfg.ShadowColor)
			assert.Equal(t, types.PositionBottom, cfg.Position)
			assert.Equal(t, types.FontBold, cfg.FontStyle)
			assert.NotEmpty(t, cfg.VeoPrompt)
			assert.NotEmpty(t, cfg.FontFamily)
			require.NotNil(t, cfg.Y)
			assert.Equal(t, 80.0, *cfg.Y)
		})
	}
}

func TestGenerateCredentialFailurePropagates(t *testing.T) {
	m := new(mockLayoutClient)
	m.On("GenerateLayout", mock.Anything, mock.Anything).
		Return(nil, client.NewError(client.NeedsCredential, "test", errors.New("401"))).Once()

	_, err := NewGenerator(m, DefaultOptions()).Generate(context.Background(), photo(), "OOTD", "")
	assert.ErrorIs(t, err, client.ErrNeedsCredential)
}

func TestGenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := new(mockLayoutClient)
	m.On("GenerateLayout", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

	_, err := NewGenerator(m, DefaultOptions()).Generate(ctx, photo(), "OOTD", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateWithoutClient(t *testing.T) {
	cfg, err := NewGenerator(nil, DefaultOptions()).Generate(context.Background(), photo(), "OOTD", "")
	require.NoError(t, err)
	assert.Equal(t, FallbackSubtitle, cfg.Subtitle)

	_, err = NewGenerator(nil, DefaultOptions()).Generate(context.Background(), nil, "OOTD", "")
	assert.Error(t, err)
}

func TestGenerateFillsBlankFields(t *testing.T) {
	m := new(mockLayoutClient)
	m.On("GenerateLayout", mock.Anything, mock.Anything).Return(&types.GeneratedLayout{
		Subtitle:  "  ",
		TextColor: "not-a-colour",
		Position:  "diagonal",
		FontStyle: "comic",
	}, nil).Once()

	cfg, err := NewGenerator(m, DefaultOptions()).Generate(context.Background(), photo(), "OOTD", "")
	require.NoError(t, err)
	assert.Equal(t, FallbackSubtitle, cfg.Subtitle)
	assert.Equal(t, "#ffffff", cfg.TextColor)
	assert.Equal(t, "#000000", cfg.ShadowColor)
	assert.Equal(t, types.PositionBottom, cfg.Position)
	assert.Equal(t, types.FontBold, cfg.FontStyle)
	assert.Equal(t, FallbackVeoPrompt, cfg.VeoPrompt)
}

func TestGenerateSendsDownscaledImage(t *testing.T) {
	m := new(mockLayoutClient)
	m.On("GenerateLayout", mock.Anything, mock.Anything).Return(&types.GeneratedLayout{Subtitle: "x"}, nil).Once()

	_, err := NewGenerator(m, Options{SendSize: 100}).Generate(context.Background(), photo(), "t", "")
	require.NoError(t, err)

	req := m.Calls[0].Arguments.Get(1).(client.LayoutRequest)
	img, err := imaging.Decode(bytes.NewReader(req.Image))
	require.NoError(t, err)
	assert.Equal(t, 75, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestFilterLabel(t *testing.T) {
	assert.Equal(t, "Original", FilterLabel(""))
	assert.Equal(t, "Original", FilterLabel("none"))
	assert.Equal(t, "Mono", FilterLabel("  grayscale(1)   contrast(1.2) "))
	assert.Equal(t, "Custom", FilterLabel("blur(2px)"))
}

func TestPresetsParse(t *testing.T) {
	for _, p := range Filters() {
		_, err := compositor.ParseFilter(p.Filter)
		assert.NoError(t, err, p.ID)
	}

	p, ok := PresetByID("Warm")
	require.True(t, ok)
	assert.Equal(t, "Warm", p.Label)
	_, ok = PresetByID("unknown")
	assert.False(t, ok)
}
