package overlay

import (
	"github.com/menta2k/cover-studio/pkg/coords"
	"github.com/menta2k/cover-studio/pkg/scene"
	"github.com/menta2k/cover-studio/pkg/types"
)

// TitleTarget drags the title of a layout config.
type TitleTarget struct{ Config *types.LayoutConfig }

func (t TitleTarget) Position() (float64, float64) {
	p, _ := t.Config.TitlePosition()
	return p.X, p.Y
}

func (t TitleTarget) SetPosition(x, y float64) {
	t.Config.SetTitlePosition(types.Point{X: x, Y: y})
}

// SubtitleTarget drags the subtitle of a layout config.
type SubtitleTarget struct{ Config *types.LayoutConfig }

func (t SubtitleTarget) Position() (float64, float64) {
	p, _ := t.Config.SubtitlePosition()
	return p.X, p.Y
}

func (t SubtitleTarget) SetPosition(x, y float64) {
	t.Config.SetSubtitlePosition(types.Point{X: x, Y: y})
}

// StickerTarget drags one sticker of a list.
type StickerTarget struct {
	List *scene.Stickers
	ID   string
}

func (t StickerTarget) Position() (float64, float64) {
	st, _ := t.List.Get(t.ID)
	return st.X, st.Y
}

func (t StickerTarget) SetPosition(x, y float64) {
	_ = t.List.Move(t.ID, x, y)
}

// Element is a hit box in paint order.
type Element struct {
	ID  scene.ElementID
	Box coords.Rect
}

// HitTest returns the topmost element containing p. Elements are given in
// paint order, so the last match wins.
func HitTest(elements []Element, p types.Point) (scene.ElementID, bool) {
	for i := len(elements) - 1; i >= 0; i-- {
		b := elements[i].Box
		if p.X >= b.X && p.X <= b.X+b.W && p.Y >= b.Y && p.Y <= b.Y+b.H {
			return elements[i].ID, true
		}
	}
	return "", false
}

// Resolve builds the drag target for an element id.
func Resolve(id scene.ElementID, cfg *types.LayoutConfig, stickers *scene.Stickers) (Target, bool) {
	switch id {
	case scene.Title:
		if cfg == nil {
			return nil, false
		}
		return TitleTarget{Config: cfg}, true
	case scene.Subtitle:
		if cfg == nil {
			return nil, false
		}
		return SubtitleTarget{Config: cfg}, true
	}
	sid, ok := id.StickerID()
	if !ok || stickers == nil {
		return nil, false
	}
	if _, ok := stickers.Get(sid); !ok {
		return nil, false
	}
	return StickerTarget{List: stickers, ID: sid}, true
}
