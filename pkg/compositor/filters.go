package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cover-studio/internal/logging"
)

// FilterOp is one function of a CSS-style filter chain.
type FilterOp struct {
	Name   string
	Amount float64 // factor, degrees for hue-rotate, pixels for blur
}

var filterFunc = regexp.MustCompile(`([a-z-]+)\(\s*([^)]*?)\s*\)`)

// ParseFilter splits a filter string such as
// "contrast(1.2) saturate(140%) hue-rotate(-10deg)" into operations.
// "none" and the empty string yield no operations. Unknown functions are
// dropped.
func ParseFilter(s string) ([]FilterOp, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return nil, nil
	}

	var ops []FilterOp
	for _, m := range filterFunc.FindAllStringSubmatch(s, -1) {
		name, arg := m[1], m[2]
		def, known := filterDefaults[name]
		if !known {
			logging.Debugf("ignoring unknown filter function %q", name)
			continue
		}
		amount := def
		if arg != "" {
			v, err := parseAmount(name, arg)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %s(%s): %w", name, arg, err)
			}
			amount = v
		}
		ops = append(ops, FilterOp{Name: name, Amount: amount})
	}
	return ops, nil
}

// amount used when a function has no argument
var filterDefaults = map[string]float64{
	"brightness": 1,
	"contrast":   1,
	"saturate":   1,
	"grayscale":  1,
	"sepia":      1,
	"invert":     1,
	"opacity":    1,
	"hue-rotate": 0,
	"blur":       0,
}

func parseAmount(name, arg string) (float64, error) {
	switch {
	case strings.HasSuffix(arg, "%"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		return v / 100, err
	case strings.HasSuffix(arg, "deg"):
		return strconv.ParseFloat(strings.TrimSuffix(arg, "deg"), 64)
	case strings.HasSuffix(arg, "turn"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(arg, "turn"), 64)
		return v * 360, err
	case strings.HasSuffix(arg, "rad"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(arg, "rad"), 64)
		return v * 180 / math.Pi, err
	case strings.HasSuffix(arg, "px"):
		return strconv.ParseFloat(strings.TrimSuffix(arg, "px"), 64)
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err == nil && name == "hue-rotate" && v != 0 {
		return 0, fmt.Errorf("hue-rotate needs an angle unit")
	}
	return v, err
}

// ApplyFilter returns a filtered copy of img. The input is never modified.
func ApplyFilter(img image.Image, filter string) (*image.NRGBA, error) {
	ops, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	out := imaging.Clone(img)
	for _, op := range ops {
		out = applyOp(out, op)
	}
	return out, nil
}

func applyOp(img *image.NRGBA, op FilterOp) *image.NRGBA {
	switch op.Name {
	case "blur":
		if op.Amount <= 0 {
			return img
		}
		return imaging.Blur(img, op.Amount)
	case "invert":
		if op.Amount >= 1 {
			return imaging.Invert(img)
		}
		a := clamp01(op.Amount)
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R = channel(float64(c.R)*(1-a) + (255-float64(c.R))*a)
			c.G = channel(float64(c.G)*(1-a) + (255-float64(c.G))*a)
			c.B = channel(float64(c.B)*(1-a) + (255-float64(c.B))*a)
			return c
		})
	case "opacity":
		a := clamp01(op.Amount)
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.A = channel(float64(c.A) * a)
			return c
		})
	case "brightness":
		k := math.Max(0, op.Amount)
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R, c.G, c.B = channel(float64(c.R)*k), channel(float64(c.G)*k), channel(float64(c.B)*k)
			return c
		})
	case "contrast":
		k := math.Max(0, op.Amount)
		f := func(v uint8) uint8 { return channel((float64(v)-127.5)*k + 127.5) }
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R, c.G, c.B = f(c.R), f(c.G), f(c.B)
			return c
		})
	}
	m, ok := colorMatrix(op)
	if !ok {
		return img
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		c.R = channel(m[0]*r + m[1]*g + m[2]*b)
		c.G = channel(m[3]*r + m[4]*g + m[5]*b)
		c.B = channel(m[6]*r + m[7]*g + m[8]*b)
		return c
	})
}

// colorMatrix returns the 3x3 filter-effects matrix for the
// matrix-based functions.
func colorMatrix(op FilterOp) ([9]float64, bool) {
	switch op.Name {
	case "saturate":
		return saturateMatrix(math.Max(0, op.Amount)), true
	case "grayscale":
		return saturateMatrix(1 - clamp01(op.Amount)), true
	case "sepia":
		a := 1 - clamp01(op.Amount)
		return [9]float64{
			0.393 + 0.607*a, 0.769 - 0.769*a, 0.189 - 0.189*a,
			0.349 - 0.349*a, 0.686 + 0.314*a, 0.168 - 0.168*a,
			0.272 - 0.272*a, 0.534 - 0.534*a, 0.131 + 0.869*a,
		}, true
	case "hue-rotate":
		rad := op.Amount * math.Pi / 180
		cos, sin := math.Cos(rad), math.Sin(rad)
		return [9]float64{
			0.213 + cos*0.787 - sin*0.213, 0.715 - cos*0.715 - sin*0.715, 0.072 - cos*0.072 + sin*0.928,
			0.213 - cos*0.213 + sin*0.143, 0.715 + cos*0.285 + sin*0.140, 0.072 - cos*0.072 - sin*0.283,
			0.213 - cos*0.213 - sin*0.787, 0.715 - cos*0.715 + sin*0.715, 0.072 + cos*0.928 + sin*0.072,
		}, true
	}
	return [9]float64{}, false
}

func saturateMatrix(s float64) [9]float64 {
	return [9]float64{
		0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
	}
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
