package compositor

import (
	"image/color"
	"strconv"

	"github.com/menta2k/cover-studio/pkg/types"
)

// ParseColor converts a layout colour string to NRGBA. It accepts
// #rgb, #rrggbb, #rrggbbaa and the names white, black and transparent.
// ok is false for unparsable input.
func ParseColor(s string) (c color.NRGBA, ok bool) {
	s = types.NormalizeHex(s)
	if s == types.Transparent {
		return color.NRGBA{}, true
	}
	if len(s) != 7 && len(s) != 9 || s[0] != '#' {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	if len(s) == 7 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}

// colorOr parses s, falling back to def for empty or invalid values.
func colorOr(s string, def color.NRGBA) color.NRGBA {
	if c, ok := ParseColor(s); ok && s != "" {
		return c
	}
	return def
}

func isTransparent(s string) bool {
	if s == "" {
		return true
	}
	c, ok := ParseColor(s)
	return !ok || c.A == 0
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
)
