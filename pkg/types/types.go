package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is a 2D coordinate in whatever space the caller works in
// (container pixels, source pixels or canvas percent).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Size is a width/height pair in pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Aspect returns W/H, or 0 for a degenerate size.
func (s Size) Aspect() float64 {
	if s.H == 0 {
		return 0
	}
	return s.W / s.H
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool { return s.W <= 0 || s.H <= 0 }

// AspectRatio is one of the supported crop window shapes
type AspectRatio struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// Supported aspect ratios
var (
	Ratio3x4  = AspectRatio{3, 4, "3:4"}
	Ratio1x1  = AspectRatio{1, 1, "1:1"}
	Ratio9x16 = AspectRatio{9, 16, "9:16"}
	Ratio16x9 = AspectRatio{16, 9, "16:9"}
)

// SupportedAspectRatios lists the ratios the crop window accepts.
func SupportedAspectRatios() []AspectRatio {
	return []AspectRatio{Ratio3x4, Ratio1x1, Ratio9x16, Ratio16x9}
}

// Value returns width/height as a float.
func (a AspectRatio) Value() float64 {
	if a.Height == 0 {
		return 0
	}
	return float64(a.Width) / float64(a.Height)
}

// Landscape reports whether the ratio is wider than tall.
func (a AspectRatio) Landscape() bool { return a.Width > a.Height }

func (a AspectRatio) String() string { return a.Name }

// ParseAspectRatio accepts "3:4", "1:1", "9:16" or "16:9".
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	for _, r := range SupportedAspectRatios() {
		if r.Name == s {
			return r, nil
		}
	}
	return AspectRatio{}, fmt.Errorf("unsupported aspect ratio %q (use 3:4, 1:1, 9:16 or 16:9)", s)
}

// Position is the layout service's placement hint for the text block.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
	PositionCenter Position = "center"
	PositionSplit  Position = "split"
)

// ParsePosition normalises a hint, falling back to bottom.
func ParsePosition(s string) Position {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case PositionTop:
		return PositionTop
	case PositionCenter, "middle":
		return PositionCenter
	case PositionSplit:
		return PositionSplit
	default:
		return PositionBottom
	}
}

// FontStyle is the layout service's font category.
type FontStyle string

const (
	FontBold        FontStyle = "bold"
	FontSerif       FontStyle = "serif"
	FontHandwritten FontStyle = "handwritten"
	FontModern      FontStyle = "modern"
)

// ParseFontStyle normalises a style, falling back to bold.
func ParseFontStyle(s string) FontStyle {
	switch FontStyle(strings.ToLower(strings.TrimSpace(s))) {
	case FontSerif:
		return FontSerif
	case FontHandwritten:
		return FontHandwritten
	case FontModern:
		return FontModern
	default:
		return FontBold
	}
}

// Transparent is the colour value that disables a background.
const Transparent = "transparent"

// GeneratedLayout is the structured answer of the layout generation service.
type GeneratedLayout struct {
	Subtitle             string `json:"subtitle"`
	TextColor            string `json:"textColor"`
	ShadowColor          string `json:"shadowColor"`
	Position             string `json:"position"`
	FontStyle            string `json:"fontStyle"`
	TitleBackgroundColor string `json:"titleBackgroundColor,omitempty"`
	VeoPrompt            string `json:"veoPrompt"`
}

// LayoutConfig describes text styling and placement. Coordinates are
// percentages of the canvas so one config renders at any resolution.
type LayoutConfig struct {
	Subtitle                string    `json:"subtitle"`
	TextColor               string    `json:"textColor"`
	ShadowColor             string    `json:"shadowColor"`
	TitleBackgroundColor    string    `json:"titleBackgroundColor,omitempty"`
	SubtitleColor           string    `json:"subtitleColor,omitempty"`
	SubtitleBackgroundColor string    `json:"subtitleBackgroundColor,omitempty"`
	Position                Position  `json:"position"`
	FontStyle               FontStyle `json:"fontStyle"`
	FontFamily              string    `json:"fontFamily,omitempty"`
	FontWeight              int       `json:"fontWeight,omitempty"`
	X                       *float64  `json:"x,omitempty"`
	Y                       *float64  `json:"y,omitempty"`
	SubtitleX               *float64  `json:"subtitleX,omitempty"`
	SubtitleY               *float64  `json:"subtitleY,omitempty"`
	Scale                   float64   `json:"scale"`
	Filter                  string    `json:"filter,omitempty"`
	VeoPrompt               string    `json:"veoPrompt"`
}

// Clone returns a deep copy.
func (c LayoutConfig) Clone() LayoutConfig {
	out := c
	out.X = cloneFloat(c.X)
	out.Y = cloneFloat(c.Y)
	out.SubtitleX = cloneFloat(c.SubtitleX)
	out.SubtitleY = cloneFloat(c.SubtitleY)
	return out
}

// TitlePosition returns the explicit title percentage position, if any.
func (c *LayoutConfig) TitlePosition() (Point, bool) {
	if c.X == nil || c.Y == nil {
		return Point{}, false
	}
	return Point{*c.X, *c.Y}, true
}

// SetTitlePosition stores an explicit title position in percent.
func (c *LayoutConfig) SetTitlePosition(p Point) {
	c.X, c.Y = Float(p.X), Float(p.Y)
}

// SubtitlePosition returns the explicit subtitle percentage position, if any.
func (c *LayoutConfig) SubtitlePosition() (Point, bool) {
	if c.SubtitleX == nil || c.SubtitleY == nil {
		return Point{}, false
	}
	return Point{*c.SubtitleX, *c.SubtitleY}, true
}

// SetSubtitlePosition stores an explicit subtitle position in percent.
func (c *LayoutConfig) SetSubtitlePosition(p Point) {
	c.SubtitleX, c.SubtitleY = Float(p.X), Float(p.Y)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StickerType distinguishes glyph stickers from free text.
type StickerType string

const (
	StickerEmoji StickerType = "emoji"
	StickerText  StickerType = "text"
)

// Sticker is a decorative element placed in canvas percent space.
type Sticker struct {
	ID       string      `json:"id"`
	Type     StickerType `json:"type"`
	Content  string      `json:"content"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Scale    float64     `json:"scale"`
	Rotation float64     `json:"rotation"`
}

// NormalizeHex lower-cases a colour and expands #rgb to #rrggbb. Named
// colours white/black map to hex; transparent and unknown values pass through.
func NormalizeHex(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	switch c {
	case "white":
		return "#ffffff"
	case "black":
		return "#000000"
	}
	if len(c) == 4 && c[0] == '#' {
		return "#" + strings.Repeat(c[1:2], 2) + strings.Repeat(c[2:3], 2) + strings.Repeat(c[3:4], 2)
	}
	return c
}

// IsWhite reports whether a colour string denotes pure white.
func IsWhite(c string) bool { return NormalizeHex(c) == "#ffffff" }

// ValidColor reports whether c is transparent or a parsable hex colour.
func ValidColor(c string) bool {
	c = NormalizeHex(c)
	if c == Transparent {
		return true
	}
	if !strings.HasPrefix(c, "#") || (len(c) != 7 && len(c) != 9) {
		return false
	}
	_, err := strconv.ParseUint(c[1:], 16, 32)
	return err == nil
}
