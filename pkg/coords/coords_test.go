package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/cover-studio/pkg/types"
)

const eps = 1e-9

func TestCoverFit(t *testing.T) {
	tests := []struct {
		name      string
		container types.Size
		natural   types.Size
		expected  types.Size
	}{
		{"wide image in square", types.Size{W: 400, H: 400}, types.Size{W: 2000, H: 1000}, types.Size{W: 800, H: 400}},
		{"tall image in square", types.Size{W: 400, H: 400}, types.Size{W: 1000, H: 2000}, types.Size{W: 400, H: 800}},
		{"same aspect", types.Size{W: 300, H: 400}, types.Size{W: 900, H: 1200}, types.Size{W: 300, H: 400}},
		{"degenerate", types.Size{}, types.Size{W: 10, H: 10}, types.Size{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoverFit(tt.container, tt.natural)
			assert.InDelta(t, tt.expected.W, got.W, eps)
			assert.InDelta(t, tt.expected.H, got.H, eps)
		})
	}
}

func TestSourceRectIdentityIsCentered(t *testing.T) {
	cases := []struct {
		container types.Size
		natural   types.Size
	}{
		{types.Size{W: 400, H: 400}, types.Size{W: 2000, H: 1000}},
		{types.Size{W: 300, H: 400}, types.Size{W: 1920, H: 1080}},
		{types.Size{W: 360, H: 640}, types.Size{W: 1000, H: 1000}},
		{types.Size{W: 640, H: 360}, types.Size{W: 800, H: 1200}},
	}

	for _, c := range cases {
		r := SourceRect(c.container, c.natural, types.Point{}, 1)

		// centre lands on the image centre
		center := r.Center()
		assert.InDelta(t, c.natural.W/2, center.X, eps)
		assert.InDelta(t, c.natural.H/2, center.Y, eps)

		// crop keeps the container shape
		assert.InDelta(t, c.container.Aspect(), r.Aspect(), 1e-9)

		// cover fit: at least one axis spans the whole image, none exceeds it
		assert.True(t, r.Inside(c.natural), "rect %+v should be inside %+v", r, c.natural)
		fullW := abs(r.W-c.natural.W) < 1e-6
		fullH := abs(r.H-c.natural.H) < 1e-6
		assert.True(t, fullW || fullH)
	}
}

func TestSourceRectScenarioA(t *testing.T) {
	r := SourceRect(types.Size{W: 400, H: 400}, types.Size{W: 2000, H: 1000}, types.Point{}, 1)
	assert.InDelta(t, 500, r.X, eps)
	assert.InDelta(t, 0, r.Y, eps)
	assert.InDelta(t, 1000, r.W, eps)
	assert.InDelta(t, 1000, r.H, eps)
}

func TestMapPointPanAndZoom(t *testing.T) {
	container := types.Size{W: 400, H: 400}
	natural := types.Size{W: 2000, H: 1000}

	// zooming 2x halves the visible source span around the centre
	r := SourceRect(container, natural, types.Point{}, 2)
	assert.InDelta(t, 500, r.W, eps)
	assert.InDelta(t, 750, r.X, eps)

	// panning the image right reveals content further left
	p := MapPoint(types.Point{X: 200, Y: 200}, container, natural, types.Point{X: 40}, 1)
	assert.InDelta(t, 1000-40*2.5, p.X, eps)
	assert.InDelta(t, 500, p.Y, eps)

	// overscroll is not clamped
	r = SourceRect(container, natural, types.Point{X: 1000}, 1)
	assert.Less(t, r.X, 0.0)
}

func TestMinCoverScaleAndMaxPan(t *testing.T) {
	container := types.Size{W: 400, H: 400}
	natural := types.Size{W: 2000, H: 1000}

	assert.InDelta(t, 1, MinCoverScale(container, natural), eps)

	mp := MaxPan(container, natural, 1)
	assert.InDelta(t, 200, mp.X, eps)
	assert.InDelta(t, 0, mp.Y, eps)
}

func TestRectClamp(t *testing.T) {
	r := Rect{X: -10, Y: 20, W: 100, H: 1000}.Clamp(types.Size{W: 50, H: 500})
	assert.Equal(t, Rect{X: 0, Y: 20, W: 50, H: 480}, r)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
