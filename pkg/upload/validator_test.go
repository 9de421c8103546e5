package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a simple gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCheck(t *testing.T) {
	v := New()

	tests := []struct {
		name   string
		mime   string
		size   int64
		reason Reason
	}{
		{"png ok", "image/png", 1024, ""},
		{"upper case mime", "IMAGE/JPEG", 1024, ""},
		{"exactly 10MB", "image/webp", MaxBytes, ""},
		{"pdf", "application/pdf", 1024, ReasonType},
		{"empty mime", "", 1024, ReasonType},
		{"too large", "image/png", MaxBytes + 1, ReasonSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Check(tt.mime, tt.size)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.reason, ve.Reason)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestSizeMessage(t *testing.T) {
	err := New().Check("image/png", MaxBytes+1)
	assert.EqualError(t, err, "Image must be 10.0 MB or smaller")
}

func TestValidate(t *testing.T) {
	v := New()

	img, info, err := v.Validate(encodePNG(t, createTestImage(40, 30)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 30, info.Height)
	assert.InDelta(t, 4.0/3.0, info.AspectRatio, 1e-9)
	assert.Equal(t, "image/png", info.MimeType)

	_, _, err = v.Validate([]byte("garbage"), "image/png")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonDecode, ve.Reason)
}

func TestValidateConfig(t *testing.T) {
	v := NewWithConfig(Config{MinImageSize: 50, SupportedFormats: []string{"png"}})

	_, _, err := v.Validate(encodePNG(t, createTestImage(40, 60)), "image/png")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonTooSmall, ve.Reason)

	err = v.Check("image/gif", 10)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonType, ve.Reason)
}
