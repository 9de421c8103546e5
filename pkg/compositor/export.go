package compositor

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Format is an export encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
)

// ParseFormat accepts png, jpg/jpeg and webp. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// MimeType returns the format's media type.
func (f Format) MimeType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	if f == "" {
		return string(PNG)
	}
	return string(f)
}

// EncodeOptions tune lossy formats.
type EncodeOptions struct {
	Quality  int  // JPEG/WebP quality, 1-100
	Lossless bool // WebP only
}

// Encode writes img to w in the given format. PNG is always lossless.
func Encode(w io.Writer, img image.Image, f Format, opts EncodeOptions) error {
	if img == nil {
		return ErrNoCanvas
	}
	q := opts.Quality
	if q <= 0 || q > 100 {
		q = 92
	}
	switch f {
	case PNG, "":
		return imaging.Encode(w, img, imaging.PNG)
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
	case WebP:
		return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(q)})
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(img image.Image, f Format, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Blob is encoded image data with its media type.
type Blob struct {
	Data     []byte
	MimeType string
}

// Snapshot keeps the most recent render so exports always reflect the
// last completed frame.
type Snapshot struct {
	mu   sync.RWMutex
	img  *image.RGBA
	opts EncodeOptions
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot(opts EncodeOptions) *Snapshot {
	return &Snapshot{opts: opts}
}

// Store replaces the held frame.
func (s *Snapshot) Store(img *image.RGBA) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

// Image returns the held frame, or nil before the first render.
func (s *Snapshot) Image() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img
}

// Clear drops the held frame.
func (s *Snapshot) Clear() { s.Store(nil) }

// ImageBytes returns the last frame as lossless PNG.
func (s *Snapshot) ImageBytes() ([]byte, error) {
	img := s.Image()
	if img == nil {
		return nil, ErrNoCanvas
	}
	return EncodeBytes(img, PNG, s.opts)
}

// Blob returns the last frame encoded as f.
func (s *Snapshot) Blob(f Format) (Blob, error) {
	img := s.Image()
	if img == nil {
		return Blob{}, ErrNoCanvas
	}
	data, err := EncodeBytes(img, f, s.opts)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Data: data, MimeType: f.MimeType()}, nil
}
