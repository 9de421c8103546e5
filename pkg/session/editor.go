package session

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/menta2k/cover-studio/pkg/compositor"
	"github.com/menta2k/cover-studio/pkg/overlay"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
)

// Title scale bounds for the editor slider.
const (
	MinTitleScale = 0.5
	MaxTitleScale = 2.0
)

// SetTitle sets the cover title.
func (s *Session) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping, Editing, Complete) {
		return s.invalid("set title")
	}
	s.title = strings.TrimSpace(title)
	s.touch()
	return nil
}

// Title returns the cover title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetFilter selects the CSS-style filter for the base image.
func (s *Session) SetFilter(filter string) error {
	if _, err := compositor.ParseFilter(filter); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Cropping, Editing, Complete) {
		return s.invalid("set filter")
	}
	s.filter = strings.TrimSpace(filter)
	if s.layout != nil {
		s.layout.Filter = s.filter
	}
	s.touch()
	return nil
}

// Filter returns the active filter string.
func (s *Session) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Layout returns a copy of the current layout.
func (s *Session) Layout() (types.LayoutConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout == nil {
		return types.LayoutConfig{}, false
	}
	return s.layout.Clone(), true
}

// touch moves a finished session back to editing after a change. The
// caller holds mu.
func (s *Session) touch() {
	if s.state == Complete {
		s.state = Editing
	}
}

// edit applies fn to the layout under the lock.
func (s *Session) edit(op string, fn func(cfg *types.LayoutConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) || s.layout == nil {
		return s.invalid(op)
	}
	next := s.layout.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	*s.layout = next
	s.touch()
	return nil
}

// SetSubtitle replaces the subtitle text.
func (s *Session) SetSubtitle(text string) error {
	return s.edit("set subtitle", func(cfg *types.LayoutConfig) error {
		cfg.Subtitle = text
		return nil
	})
}

// SetTitleScale sets the uniform title/subtitle scale.
func (s *Session) SetTitleScale(v float64) error {
	return s.edit("set scale", func(cfg *types.LayoutConfig) error {
		if math.IsNaN(v) || v < MinTitleScale || v > MaxTitleScale {
			return fmt.Errorf("scale %.2f not in [%.1f, %.1f]", v, MinTitleScale, MaxTitleScale)
		}
		cfg.Scale = v
		return nil
	})
}

// ColorField selects one colour of the layout.
type ColorField int

const (
	TextColor ColorField = iota
	ShadowColor
	TitleBackground
	SubtitleColor
	SubtitleBackground
)

// SetColor sets one layout colour. Values are hex, white, black or transparent.
func (s *Session) SetColor(field ColorField, value string) error {
	if !types.ValidColor(value) {
		return fmt.Errorf("invalid colour %q", value)
	}
	value = types.NormalizeHex(value)
	return s.edit("set colour", func(cfg *types.LayoutConfig) error {
		switch field {
		case TextColor:
			cfg.TextColor = value
		case ShadowColor:
			cfg.ShadowColor = value
		case TitleBackground:
			cfg.TitleBackgroundColor = value
		case SubtitleColor:
			cfg.SubtitleColor = value
		case SubtitleBackground:
			cfg.SubtitleBackgroundColor = value
		default:
			return fmt.Errorf("unknown colour field %d", field)
		}
		return nil
	})
}

// SetFontStyle switches the style category and resolves its family and weight.
func (s *Session) SetFontStyle(style types.FontStyle) error {
	return s.edit("set font style", func(cfg *types.LayoutConfig) error {
		cfg.FontStyle = types.ParseFontStyle(string(style))
		cfg.FontFamily = scene.FamilyFor(cfg.FontStyle)
		cfg.FontWeight = scene.WeightFor(cfg.FontStyle, cfg.FontFamily)
		return nil
	})
}

// SetFontFamily picks a family from the font book. Display families are
// forced to normal weight.
func (s *Session) SetFontFamily(family string) error {
	fonts := s.compositor.Fonts()
	if !fonts.Has(family) {
		return fmt.Errorf("unknown font family %q", family)
	}
	return s.edit("set font family", func(cfg *types.LayoutConfig) error {
		cfg.FontFamily = family
		if fonts.IsDisplay(family) {
			cfg.FontWeight = scene.WeightNormal
		} else if cfg.FontWeight == 0 {
			cfg.FontWeight = scene.WeightFor(cfg.FontStyle, "")
		}
		return nil
	})
}

// SetFontWeight sets the CSS-style weight (100-900).
func (s *Session) SetFontWeight(weight int) error {
	if weight < 100 || weight > 900 {
		return fmt.Errorf("font weight %d not in [100, 900]", weight)
	}
	return s.edit("set font weight", func(cfg *types.LayoutConfig) error {
		cfg.FontWeight = weight
		return nil
	})
}

// SetMotionPrompt replaces the animation prompt.
func (s *Session) SetMotionPrompt(prompt string) error {
	return s.edit("set motion prompt", func(cfg *types.LayoutConfig) error {
		cfg.VeoPrompt = strings.TrimSpace(prompt)
		return nil
	})
}

// MoveElement places the title, subtitle or a sticker at a percent position.
func (s *Session) MoveElement(id scene.ElementID, p types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return s.invalid("move")
	}
	t, ok := overlay.Resolve(id, s.layout, s.stickers)
	if !ok {
		return fmt.Errorf("%w: %s", overlay.ErrNoTarget, id)
	}
	t.SetPosition(p.X, p.Y)
	s.touch()
	return nil
}

// AddSticker appends a sticker at the canvas centre. Emoji that no
// registered font can draw are rejected with compositor.ErrMissingGlyphs.
func (s *Session) AddSticker(kind types.StickerType, content string) (types.Sticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return types.Sticker{}, s.invalid("add sticker")
	}
	if err := s.compositor.CheckSticker(kind, content); err != nil {
		return types.Sticker{}, err
	}
	st, err := s.stickers.Add(kind, content)
	if err != nil {
		return types.Sticker{}, err
	}
	s.touch()
	return st, nil
}

// RemoveSticker deletes a sticker.
func (s *Session) RemoveSticker(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return s.invalid("remove sticker")
	}
	if err := s.stickers.Remove(id); err != nil {
		return err
	}
	s.touch()
	return nil
}

// ScaleSticker steps a sticker's scale up or down.
func (s *Session) ScaleSticker(id string, up bool) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return 0, s.invalid("scale sticker")
	}
	var (
		v   float64
		err error
	)
	if up {
		v, err = s.stickers.ScaleUp(id)
	} else {
		v, err = s.stickers.ScaleDown(id)
	}
	if err == nil {
		s.touch()
	}
	return v, err
}

// RotateSticker sets a sticker's rotation in degrees.
func (s *Session) RotateSticker(id string, degrees float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return s.invalid("rotate sticker")
	}
	if err := s.stickers.Rotate(id, degrees); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Stickers returns the stickers in paint order.
func (s *Session) Stickers() []types.Sticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stickers.List()
}

// PointerDown starts dragging element with pointerID.
func (s *Session) PointerDown(pointerID int, screen types.Point, id scene.ElementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return s.invalid("drag")
	}
	t, ok := overlay.Resolve(id, s.layout, s.stickers)
	if !ok {
		return fmt.Errorf("%w: %s", overlay.ErrNoTarget, id)
	}
	return s.overlay.PointerDown(pointerID, screen, t)
}

// PointerDownAt hit-tests the frame at a screen point inside a container
// of the given rendered size and starts dragging the topmost element.
func (s *Session) PointerDownAt(pointerID int, screen types.Point, container types.Size) (scene.ElementID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Complete) {
		return "", s.invalid("drag")
	}
	if container.Empty() {
		return "", fmt.Errorf("%w: empty container", overlay.ErrNoTarget)
	}
	elements, err := s.compositor.Elements(s.renderInput(0, 0))
	if err != nil {
		return "", err
	}
	p := types.Point{X: screen.X / container.W * 100, Y: screen.Y / container.H * 100}
	id, ok := overlay.HitTest(elements, p)
	if !ok {
		return "", overlay.ErrNoTarget
	}
	t, _ := overlay.Resolve(id, s.layout, s.stickers)
	if err := s.overlay.PointerDown(pointerID, screen, t); err != nil {
		return "", err
	}
	return id, nil
}

// PointerMove drags the captured element. It reports whether pointerID
// was captured.
func (s *Session) PointerMove(pointerID int, screen types.Point, container types.Size) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := s.overlay.PointerMove(pointerID, screen, container)
	if moved {
		s.touch()
	}
	return moved
}

// PointerUp ends a drag.
func (s *Session) PointerUp(pointerID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.PointerUp(pointerID)
}

// PointerLeave ends a drag when the pointer leaves the canvas.
func (s *Session) PointerLeave(pointerID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.PointerLeave(pointerID)
}

// renderInput assembles the frame inputs. The caller holds mu.
func (s *Session) renderInput(w, h int) compositor.RenderInput {
	in := compositor.RenderInput{
		Title:    s.title,
		Filter:   s.filter,
		Stickers: s.stickers.List(),
		Width:    w,
		Height:   h,
	}
	if s.cropped != nil {
		in.Base = s.cropped.Image
	}
	if s.layout != nil {
		in.Layout = s.layout.Clone()
	}
	return in
}

// renderLocked renders the current frame and records it as the export
// snapshot. The caller holds mu.
func (s *Session) renderLocked(w, h int) (*image.RGBA, error) {
	if s.layout == nil {
		return nil, s.invalid("render")
	}
	frame, err := s.compositor.Render(s.renderInput(w, h))
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(frame)
	return frame, nil
}

// Render draws the current frame at w x h; zero uses the crop resolution.
func (s *Session) Render(w, h int) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Animating, Complete) {
		return nil, s.invalid("render")
	}
	return s.renderLocked(w, h)
}

// Export renders at full resolution and encodes the frame.
func (s *Session) Export(f compositor.Format) (compositor.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in(Editing, Animating, Complete) {
		return compositor.Blob{}, s.invalid("export")
	}
	if _, err := s.renderLocked(0, 0); err != nil {
		return compositor.Blob{}, err
	}
	return s.snapshot.Blob(f)
}

// ImageBytes returns the last rendered frame as lossless PNG.
func (s *Session) ImageBytes() ([]byte, error) {
	return s.snapshot.ImageBytes()
}

// Blob returns the last rendered frame encoded as f.
func (s *Session) Blob(f compositor.Format) (compositor.Blob, error) {
	return s.snapshot.Blob(f)
}
