package scene

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/menta2k/cover-studio/pkg/types"
)

// Sticker scale limits and step
const (
	StickerScaleStep = 0.1
	StickerMinScale  = 0.2
	StickerMaxScale  = 5.0
)

// ErrStickerNotFound is returned for unknown sticker ids.
var ErrStickerNotFound = errors.New("scene: sticker not found")

// Stickers is the ordered sticker list. Index order is paint order.
type Stickers struct {
	items []types.Sticker
	newID func() string
}

// NewStickers returns an empty list whose ids are time-ordered UUIDv7
// values, so sorting ids sorts by creation time.
func NewStickers() *Stickers {
	return &Stickers{newID: newStickerID}
}

func newStickerID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Add appends a sticker with the default placement (centre, scale 1, no rotation).
func (s *Stickers) Add(kind types.StickerType, content string) (types.Sticker, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Sticker{}, fmt.Errorf("scene: empty sticker content")
	}
	if kind != types.StickerEmoji && kind != types.StickerText {
		return types.Sticker{}, fmt.Errorf("scene: unknown sticker type %q", kind)
	}
	st := types.Sticker{
		ID:      s.newID(),
		Type:    kind,
		Content: content,
		X:       50,
		Y:       50,
		Scale:   1,
	}
	s.items = append(s.items, st)
	return st, nil
}

// Remove deletes a sticker, keeping the order of the rest.
func (s *Stickers) Remove(id string) error {
	i := s.index(id)
	if i < 0 {
		return ErrStickerNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// Get returns a copy of the sticker with the given id.
func (s *Stickers) Get(id string) (types.Sticker, bool) {
	i := s.index(id)
	if i < 0 {
		return types.Sticker{}, false
	}
	return s.items[i], true
}

// List returns a copy of the stickers in paint order.
func (s *Stickers) List() []types.Sticker {
	out := make([]types.Sticker, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stickers.
func (s *Stickers) Len() int { return len(s.items) }

// Clear removes every sticker.
func (s *Stickers) Clear() { s.items = nil }

// Move sets a sticker's position in canvas percent.
func (s *Stickers) Move(id string, x, y float64) error {
	i := s.index(id)
	if i < 0 {
		return ErrStickerNotFound
	}
	s.items[i].X, s.items[i].Y = x, y
	return nil
}

// ScaleUp grows a sticker by one step, never past StickerMaxScale.
func (s *Stickers) ScaleUp(id string) (float64, error) {
	return s.scaleBy(id, StickerScaleStep)
}

// ScaleDown shrinks a sticker by one step, never below StickerMinScale.
func (s *Stickers) ScaleDown(id string) (float64, error) {
	return s.scaleBy(id, -StickerScaleStep)
}

func (s *Stickers) scaleBy(id string, delta float64) (float64, error) {
	i := s.index(id)
	if i < 0 {
		return 0, ErrStickerNotFound
	}
	v := ClampStickerScale(s.items[i].Scale + delta)
	s.items[i].Scale = v
	return v, nil
}

// Rotate sets a sticker's rotation in degrees.
func (s *Stickers) Rotate(id string, degrees float64) error {
	i := s.index(id)
	if i < 0 {
		return ErrStickerNotFound
	}
	s.items[i].Rotation = math.Mod(degrees, 360)
	return nil
}

// ClampStickerScale rounds to the step grid and clamps into
// [StickerMinScale, StickerMaxScale]. Rounding keeps repeated steps from
// accumulating float error.
func ClampStickerScale(v float64) float64 {
	v = math.Round(v*10) / 10
	return math.Max(StickerMinScale, math.Min(StickerMaxScale, v))
}

func (s *Stickers) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
