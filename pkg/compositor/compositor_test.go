package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func newCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := New(nil, Options{})
	require.NoError(t, err)
	return c
}

func sampleInput() RenderInput {
	cfg := scene.Seed(types.GeneratedLayout{
		Subtitle:             "weekend edit",
		TextColor:            "#ffffff",
		ShadowColor:          "#101010",
		Position:             "bottom",
		FontStyle:            "bold",
		TitleBackgroundColor: "#ff0000",
	}, "contrast(1.1) saturate(120%)")

	return RenderInput{
		Base:   solidImage(300, 400, color.NRGBA{40, 120, 200, 255}),
		Filter: cfg.Filter,
		Layout: cfg,
		Title:  "OOTD",
		Stickers: []types.Sticker{
			{ID: "a", Type: types.StickerText, Content: "SALE", X: 30, Y: 30, Scale: 1.5, Rotation: 15},
			{ID: "b", Type: types.StickerEmoji, Content: "*", X: 70, Y: 40, Scale: 1, Rotation: -30},
		},
		Width:  360,
		Height: 480,
	}
}

func TestRenderNoCanvas(t *testing.T) {
	c := newCompositor(t)

	_, err := c.Render(RenderInput{})
	assert.ErrorIs(t, err, ErrNoCanvas)

	_, err = c.Render(RenderInput{Base: solidImage(10, 10, color.White), Width: -5, Height: 10})
	assert.ErrorIs(t, err, ErrNoCanvas)

	_, err = c.Elements(RenderInput{})
	assert.ErrorIs(t, err, ErrNoCanvas)
}

func TestRenderDefaultsToBaseSize(t *testing.T) {
	c := newCompositor(t)
	out, err := c.Render(RenderInput{Base: solidImage(123, 77, color.White)})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 123, 77), out.Bounds())
}

func TestRenderIdempotent(t *testing.T) {
	c := newCompositor(t)
	in := sampleInput()

	a, err := c.Render(in)
	require.NoError(t, err)
	b, err := c.Render(in)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 360, 480), a.Bounds())
	assert.True(t, bytes.Equal(a.Pix, b.Pix), "identical input must render identical pixels")
}

func TestRenderDoesNotMutateInput(t *testing.T) {
	c := newCompositor(t)
	in := sampleInput()
	base := in.Base.(*image.NRGBA)
	before := append([]uint8(nil), base.Pix...)

	_, err := c.Render(in)
	require.NoError(t, err)
	assert.Equal(t, before, base.Pix)
}

func TestToneOverlay(t *testing.T) {
	c := newCompositor(t)
	out, err := c.Render(RenderInput{Base: solidImage(100, 200, color.White)})
	require.NoError(t, err)

	top := out.RGBAAt(50, 10)
	bottom := out.RGBAAt(50, 199)

	// only the wash above the midline
	assert.InDelta(t, 255*0.95, float64(top.R), 2)
	assert.Equal(t, top, out.RGBAAt(50, 99))
	// gradient reaches about 70% darkening at the bottom edge
	assert.Less(t, bottom.R, top.R)
	assert.InDelta(t, 255*0.3*0.95, float64(bottom.R), 4)
}

func TestTitleBackgroundPill(t *testing.T) {
	c := newCompositor(t)
	in := sampleInput()
	in.Stickers = nil

	out, err := c.Render(in)
	require.NoError(t, err)
	elems, err := c.Elements(in)
	require.NoError(t, err)
	require.Equal(t, scene.Title, elems[0].ID)

	box := elems[0].Box
	size := math.Min(360, 480) * TitleSizeFactor
	// inside the left padding, vertically centred on the title anchor
	x := int(box.X/100*360 + 0.3*size)
	y := int(0.8 * 480)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, out.RGBAAt(x, y))
}

func TestTitleOutline(t *testing.T) {
	c := newCompositor(t)
	in := RenderInput{
		Base: solidImage(400, 400, color.Black),
		Layout: types.LayoutConfig{
			TextColor:            "#ffffff",
			ShadowColor:          "#ff0000",
			TitleBackgroundColor: types.Transparent,
			Scale:                1,
		},
		Title: "HOT",
	}
	out, err := c.Render(in)
	require.NoError(t, err)

	p, err := c.plan(in, 400, 400)
	require.NoError(t, err)
	mask, origin := p.title.mask(p.titleAt.X, p.titleAt.Y, 2)
	b := mask.Bounds()

	edge, inside := 0, 0
	for y := 1; y < b.Dy()-1; y++ {
		for x := 1; x < b.Dx()-1; x++ {
			at := image.Pt(origin.X+x, origin.Y+y)
			switch {
			case mask.AlphaAt(x, y).A == 255:
				assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(at.X, at.Y), "glyph fill at %v", at)
				inside++
			case mask.AlphaAt(x, y).A == 0 &&
				(mask.AlphaAt(x-1, y).A == 255 || mask.AlphaAt(x+1, y).A == 255 ||
					mask.AlphaAt(x, y-1).A == 255 || mask.AlphaAt(x, y+1).A == 255):
				assert.Equal(t, color.RGBA{255, 0, 0, 255}, out.RGBAAt(at.X, at.Y), "outline at %v", at)
				edge++
			}
		}
	}
	assert.Greater(t, inside, 50)
	assert.Greater(t, edge, 50)
}

func TestSubtitleShadow(t *testing.T) {
	c := newCompositor(t)
	in := RenderInput{
		Base: solidImage(300, 300, color.White),
		Layout: types.LayoutConfig{
			Subtitle:                "weekend edit",
			SubtitleColor:           "#ffffff",
			SubtitleBackgroundColor: "#000000",
			Scale:                   1,
		},
	}
	in.Layout.SetSubtitlePosition(types.Point{X: 50, Y: 20})

	out, err := c.Render(in)
	require.NoError(t, err)
	plain, err := c.Render(RenderInput{Base: in.Base})
	require.NoError(t, err)

	p, err := c.plan(in, 300, 300)
	require.NoError(t, err)
	box := p.subtitleBox
	x := int(box.X + box.W/2)
	bottom := int(math.Floor(box.Y + box.H))

	// below the pill but inside its offset copy
	shadowed := out.RGBAAt(x, bottom+2)
	under := plain.RGBAAt(x, bottom+2)
	keep := 1 - math.Round(subtitleShadowOpacity*255)/255
	assert.InDelta(t, float64(under.R)*keep, float64(shadowed.R), 2)
	assert.InDelta(t, float64(under.B)*keep, float64(shadowed.B), 2)

	// past the offset copy the base shows through unchanged
	assert.Equal(t, plain.RGBAAt(x, bottom+int(SubtitleShadowOffset)+2), out.RGBAAt(x, bottom+int(SubtitleShadowOffset)+2))
}

func TestSubtitleTransparentBackground(t *testing.T) {
	c := newCompositor(t)
	in := RenderInput{
		Base:   solidImage(200, 200, color.White),
		Layout: types.LayoutConfig{Subtitle: "hello", SubtitleBackgroundColor: types.Transparent, SubtitleColor: "#000000", Scale: 1},
	}
	in.Layout.SetSubtitlePosition(types.Point{X: 50, Y: 20})

	out, err := c.Render(in)
	require.NoError(t, err)
	plain, err := c.Render(RenderInput{Base: in.Base})
	require.NoError(t, err)

	elems, err := c.Elements(in)
	require.NoError(t, err)
	require.Len(t, elems, 1)
	box := elems[0].Box

	// the pill's left edge area is untouched when the background is transparent
	x, y := int(box.X/100*200)+1, int(box.Y/100*200)+1
	assert.Equal(t, plain.RGBAAt(x, y), out.RGBAAt(x, y))
}

func TestElementsOrder(t *testing.T) {
	c := newCompositor(t)
	in := sampleInput()

	elems, err := c.Elements(in)
	require.NoError(t, err)
	require.Len(t, elems, 4)

	assert.Equal(t, scene.Title, elems[0].ID)
	assert.Equal(t, scene.Subtitle, elems[1].ID)
	assert.Equal(t, scene.StickerElement("a"), elems[2].ID)
	assert.Equal(t, scene.StickerElement("b"), elems[3].ID)

	title := elems[0].Box
	center := title.Center()
	assert.InDelta(t, 50, center.X, 1e-9)
	assert.InDelta(t, 80, center.Y, 1e-9)

	sticker := elems[2].Box
	center = sticker.Center()
	assert.InDelta(t, 30, center.X, 1e-9)
	assert.InDelta(t, 30, center.Y, 1e-9)
}

func TestStickerRotationSwapsBounds(t *testing.T) {
	c := newCompositor(t)
	base := solidImage(400, 400, color.Black)
	st := types.Sticker{ID: "s", Type: types.StickerText, Content: "WIDE TEXT", X: 50, Y: 50, Scale: 1}

	flat, err := c.Elements(RenderInput{Base: base, Stickers: []types.Sticker{st}})
	require.NoError(t, err)
	st.Rotation = 90
	turned, err := c.Elements(RenderInput{Base: base, Stickers: []types.Sticker{st}})
	require.NoError(t, err)

	assert.InDelta(t, flat[0].Box.W, turned[0].Box.H, 1e-6)
	assert.InDelta(t, flat[0].Box.H, turned[0].Box.W, 1e-6)

	st.Scale = 2
	big, err := c.Elements(RenderInput{Base: base, Stickers: []types.Sticker{st}})
	require.NoError(t, err)
	assert.InDelta(t, 2*turned[0].Box.W, big[0].Box.W, 1e-6)
}

func TestStickerDrawsOverBase(t *testing.T) {
	c := newCompositor(t)
	base := solidImage(400, 400, color.Black)
	in := RenderInput{Base: base, Stickers: []types.Sticker{{ID: "s", Type: types.StickerText, Content: "IIIII", X: 50, Y: 20, Scale: 3}}}

	with, err := c.Render(in)
	require.NoError(t, err)
	without, err := c.Render(RenderInput{Base: base})
	require.NoError(t, err)

	assert.False(t, bytes.Equal(with.Pix, without.Pix))
}

func TestSnapshot(t *testing.T) {
	s := NewSnapshot(EncodeOptions{Quality: 90})

	_, err := s.ImageBytes()
	assert.ErrorIs(t, err, ErrNoCanvas)
	_, err = s.Blob(JPEG)
	assert.ErrorIs(t, err, ErrNoCanvas)

	c := newCompositor(t)
	frame, err := c.Render(sampleInput())
	require.NoError(t, err)
	s.Store(frame)

	data, err := s.ImageBytes()
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	rgba := image.NewRGBA(decoded.Bounds())
	draw.Draw(rgba, rgba.Bounds(), decoded, image.Point{}, draw.Src)
	assert.True(t, bytes.Equal(frame.Pix, rgba.Pix), "PNG export must be lossless")

	blob, err := s.Blob(JPEG)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", blob.MimeType)
	assert.NotEmpty(t, blob.Data)

	s.Clear()
	assert.Nil(t, s.Image())
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": PNG, "png": PNG, ".JPG": JPEG, "jpeg": JPEG, "webp": WebP}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("gif")
	assert.Error(t, err)

	assert.Equal(t, "jpg", JPEG.Ext())
	assert.Equal(t, "image/webp", WebP.MimeType())
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#ffffff", color.NRGBA{255, 255, 255, 255}, true},
		{"#F00", color.NRGBA{255, 0, 0, 255}, true},
		{"black", color.NRGBA{0, 0, 0, 255}, true},
		{"#11223380", color.NRGBA{0x11, 0x22, 0x33, 0x80}, true},
		{"transparent", color.NRGBA{}, true},
		{"red", color.NRGBA{}, false},
		{"#12345", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseColor(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFontBook(t *testing.T) {
	b, err := NewFontBook()
	require.NoError(t, err)

	assert.Equal(t, []string{FamilySymbols, scene.FamilyItalic, scene.FamilyMedium, scene.FamilyMono, scene.FamilySans, scene.FamilySmallcaps}, b.Families())
	assert.True(t, b.IsDisplay(scene.FamilyItalic))
	assert.False(t, b.IsDisplay(scene.FamilySans))

	face, err := b.Face("No Such Family", 900, 24)
	require.NoError(t, err)
	assert.NotNil(t, face)

	assert.Error(t, b.Register("", nil, nil, false))
	assert.Error(t, b.Register("Broken", []byte("not a font"), nil, false))
	assert.Error(t, b.RegisterFile("Missing", "/nonexistent/font.ttf", "", false))
}
