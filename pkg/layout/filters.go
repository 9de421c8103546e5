package layout

import "strings"

// Preset is a named filter string offered in the editor.
type Preset struct {
	ID     string `json:"id" yaml:"id"`
	Label  string `json:"label" yaml:"label"`
	Filter string `json:"filter" yaml:"filter"`
}

var presets = []Preset{
	{ID: "original", Label: "Original", Filter: "none"},
	{ID: "vivid", Label: "Vivid", Filter: "saturate(1.5) contrast(1.1)"},
	{ID: "warm", Label: "Warm", Filter: "sepia(0.3) saturate(1.4) hue-rotate(-10deg)"},
	{ID: "cool", Label: "Cool", Filter: "saturate(1.1) hue-rotate(15deg) brightness(1.05)"},
	{ID: "mono", Label: "Mono", Filter: "grayscale(1) contrast(1.2)"},
	{ID: "vintage", Label: "Vintage", Filter: "sepia(0.6) contrast(0.9) brightness(1.1)"},
	{ID: "dramatic", Label: "Dramatic", Filter: "contrast(1.4) saturate(0.8) brightness(0.9)"},
	{ID: "fade", Label: "Fade", Filter: "contrast(0.8) brightness(1.15) saturate(0.7)"},
}

// Filters lists the editor's filter presets in display order.
func Filters() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByID finds a preset by its id, case-insensitively.
func PresetByID(id string) (Preset, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// FilterLabel names the style of a filter string for the layout prompt.
// Unknown filters are described as custom.
func FilterLabel(filter string) string {
	f := normalizeFilter(filter)
	if f == "" || f == "none" {
		return "Original"
	}
	for _, p := range presets {
		if normalizeFilter(p.Filter) == f {
			return p.Label
		}
	}
	return "Custom"
}

func normalizeFilter(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
