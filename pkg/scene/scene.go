// Package scene holds the percentage-based positional model shared by the
// title, subtitle and stickers. Nothing here knows about pixels.
package scene

import (
	"strings"

	"github.com/menta2k/cover-studio/pkg/types"
)

// Font families known to the compositor's font book.
const (
	FamilySans      = "Go Sans"
	FamilyMono      = "Go Mono"
	FamilyMedium    = "Go Medium"
	FamilyItalic    = "Go Italic"
	FamilySmallcaps = "Go Smallcaps"
)

// Font weights
const (
	WeightNormal = 400
	WeightBold   = 700
	WeightHeavy  = 900
)

// initial (titleY, subtitleY) percentages per placement hint
var seedRows = map[types.Position][2]float64{
	types.PositionTop:    {20, 30},
	types.PositionBottom: {80, 90},
	types.PositionSplit:  {15, 85},
	types.PositionCenter: {50, 65},
}

// Seed turns a freshly generated layout into an editable LayoutConfig with
// explicit positions and derived colour defaults. It runs once per
// generation; later edits never re-run it.
func Seed(gen types.GeneratedLayout, filter string) types.LayoutConfig {
	pos := types.ParsePosition(gen.Position)
	style := types.ParseFontStyle(gen.FontStyle)

	textColor := colorOr(gen.TextColor, "#ffffff")
	shadowColor := colorOr(gen.ShadowColor, "#000000")

	cfg := types.LayoutConfig{
		Subtitle:             strings.TrimSpace(gen.Subtitle),
		TextColor:            textColor,
		ShadowColor:          shadowColor,
		TitleBackgroundColor: colorOr(gen.TitleBackgroundColor, types.Transparent),
		Position:             pos,
		FontStyle:            style,
		FontFamily:           FamilyFor(style),
		FontWeight:           WeightFor(style, FamilyFor(style)),
		Scale:                1,
		Filter:               filter,
		VeoPrompt:            strings.TrimSpace(gen.VeoPrompt),
	}

	// complementary subtitle pairing
	if types.IsWhite(textColor) {
		cfg.SubtitleColor = "#ffffff"
		cfg.SubtitleBackgroundColor = shadowColor
	} else {
		cfg.SubtitleColor = shadowColor
		cfg.SubtitleBackgroundColor = "#ffffff"
	}

	titleY, subtitleY := Rows(pos)
	cfg.SetTitlePosition(types.Point{X: 50, Y: titleY})
	cfg.SetSubtitlePosition(types.Point{X: 50, Y: subtitleY})
	return cfg
}

// Rows returns the seeded (titleY, subtitleY) percentages for a placement hint.
func Rows(pos types.Position) (float64, float64) {
	rows, ok := seedRows[pos]
	if !ok {
		rows = seedRows[types.PositionBottom]
	}
	return rows[0], rows[1]
}

// FamilyFor resolves a font style category to a concrete family.
func FamilyFor(style types.FontStyle) string {
	switch style {
	case types.FontSerif:
		return FamilyMono
	case types.FontHandwritten:
		return FamilyItalic
	case types.FontModern:
		return FamilyMedium
	default:
		return FamilySans
	}
}

// IsDisplayFamily reports whether a family is a display/script face
// without a true bold cut.
func IsDisplayFamily(family string) bool {
	switch family {
	case FamilyItalic, FamilySmallcaps:
		return true
	}
	return false
}

// WeightFor picks the weight a style renders with. Display families are
// always normal. An empty family is a legacy config and gets the
// per-style override.
func WeightFor(style types.FontStyle, family string) int {
	if IsDisplayFamily(family) {
		return WeightNormal
	}
	if family == "" {
		switch style {
		case types.FontHandwritten:
			return WeightNormal
		case types.FontSerif, types.FontModern:
			return WeightBold
		}
	}
	return WeightHeavy
}

func colorOr(c, def string) string {
	c = types.NormalizeHex(c)
	if c == "" || !types.ValidColor(c) {
		return def
	}
	return c
}

// ElementID names something the overlay can drag.
type ElementID string

// Fixed element ids
const (
	Title    ElementID = "title"
	Subtitle ElementID = "subtitle"
)

const stickerPrefix = "sticker:"

// StickerElement returns the element id of a sticker.
func StickerElement(id string) ElementID { return ElementID(stickerPrefix + id) }

// StickerID extracts the sticker id from an element id.
func (e ElementID) StickerID() (string, bool) {
	s := string(e)
	if !strings.HasPrefix(s, stickerPrefix) || len(s) == len(stickerPrefix) {
		return "", false
	}
	return s[len(stickerPrefix):], true
}
