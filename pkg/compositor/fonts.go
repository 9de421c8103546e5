package compositor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/flopp/go-findfont"
	"github.com/go-fonts/dejavu/dejavusans"
	"github.com/go-fonts/dejavu/dejavusansbold"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	"github.com/menta2k/cover-studio/pkg/scene"
)

// boldThreshold is the lowest weight drawn with a family's bold face.
const boldThreshold = 600

// FamilySymbols is the embedded last-resort family. It covers symbols,
// dingbats and most non-CJK scripts the Go fonts lack.
const FamilySymbols = "DejaVu Sans"

// ErrMissingGlyphs is returned when no registered family can draw some of
// the requested characters.
var ErrMissingGlyphs = errors.New("compositor: no font covers")

// systemFallbacks are font files picked up by RegisterSystemFallbacks, in
// priority order. Color bitmap emoji fonts are left out: they carry no
// outlines to rasterise.
var systemFallbacks = []struct {
	family string
	files  []string
}{
	{"Noto Sans CJK", []string{"NotoSansCJK-Regular.ttc", "NotoSansCJKsc-Regular.otf", "NotoSansSC-Regular.otf", "NotoSansSC-Regular.ttf"}},
	{"Source Han Sans", []string{"SourceHanSansSC-Regular.otf", "SourceHanSans-Regular.ttc"}},
	{"WenQuanYi", []string{"wqy-microhei.ttc", "wqy-zenhei.ttc"}},
	{"Droid Sans Fallback", []string{"DroidSansFallbackFull.ttf", "DroidSansFallback.ttf"}},
	{"PingFang", []string{"PingFang.ttc", "Hiragino Sans GB.ttc"}},
	{"Microsoft YaHei", []string{"msyh.ttc", "msyh.ttf", "simhei.ttf"}},
	{"Arial Unicode", []string{"Arial Unicode.ttf", "ArialUnicode.ttf"}},
	{"Noto Emoji", []string{"NotoEmoji-Regular.ttf", "NotoEmoji[wght].ttf"}},
	{"Segoe UI Emoji", []string{"seguiemj.ttf"}},
	{"Symbola", []string{"Symbola.ttf", "Symbola_hint.ttf"}},
}

// Family is a registered font family.
type Family struct {
	Name    string
	Regular *opentype.Font
	Bold    *opentype.Font // nil when the family has no bold cut
	Display bool           // display faces always render at normal weight
}

// pick returns the cut used at weight.
func (f *Family) pick(weight int) *opentype.Font {
	if !f.Display && weight >= boldThreshold && f.Bold != nil {
		return f.Bold
	}
	return f.Regular
}

// FontBook maps family names to parsed fonts. Parsed fonts are shared
// read-only; every Face call builds a fresh face.
//
// Characters the requested family cannot draw are taken from the fallback
// chain: configured fallbacks in the order they were added, then the
// embedded symbols family.
type FontBook struct {
	mu         sync.RWMutex
	families   map[string]*Family
	fallback   string
	chain      []string
	lastResort []string
}

// NewFontBook returns a book preloaded with the embedded Go fonts and the
// DejaVu symbols fallback.
func NewFontBook() (*FontBook, error) {
	b := &FontBook{families: make(map[string]*Family), fallback: scene.FamilySans}

	builtin := []struct {
		name          string
		regular, bold []byte
		display       bool
	}{
		{scene.FamilySans, goregular.TTF, gobold.TTF, false},
		{scene.FamilyMono, gomono.TTF, gomonobold.TTF, false},
		{scene.FamilyMedium, gomedium.TTF, gobold.TTF, false},
		{scene.FamilyItalic, goitalic.TTF, nil, true},
		{scene.FamilySmallcaps, gosmallcaps.TTF, nil, true},
		{FamilySymbols, dejavusans.TTF, dejavusansbold.TTF, false},
	}
	for _, f := range builtin {
		if err := b.Register(f.name, f.regular, f.bold, f.display); err != nil {
			return nil, err
		}
	}
	b.lastResort = []string{FamilySymbols}
	return b, nil
}

// parseFont accepts single fonts and collections; collections yield their
// first member.
func parseFont(data []byte) (*opentype.Font, error) {
	f, err := opentype.Parse(data)
	if err == nil {
		return f, nil
	}
	coll, cerr := opentype.ParseCollection(data)
	if cerr != nil {
		return nil, err
	}
	return coll.Font(0)
}

// Register parses and adds a family. bold may be nil.
func (b *FontBook) Register(name string, regular, bold []byte, display bool) error {
	if name == "" {
		return fmt.Errorf("font family name is required")
	}
	reg, err := parseFont(regular)
	if err != nil {
		return fmt.Errorf("failed to parse font %q: %w", name, err)
	}
	fam := &Family{Name: name, Regular: reg, Display: display}
	if bold != nil {
		if fam.Bold, err = parseFont(bold); err != nil {
			return fmt.Errorf("failed to parse bold font %q: %w", name, err)
		}
	}

	b.mu.Lock()
	b.families[name] = fam
	b.mu.Unlock()
	return nil
}

// RegisterFile loads a family from TTF/OTF/TTC files on disk. boldPath may
// be empty.
func (b *FontBook) RegisterFile(name, regularPath, boldPath string, display bool) error {
	regular, err := os.ReadFile(regularPath)
	if err != nil {
		return fmt.Errorf("could not load font %q: %w", regularPath, err)
	}
	var bold []byte
	if boldPath != "" {
		if bold, err = os.ReadFile(boldPath); err != nil {
			return fmt.Errorf("could not load font %q: %w", boldPath, err)
		}
	}
	return b.Register(name, regular, bold, display)
}

// AddFallback appends a registered family to the fallback chain.
func (b *FontBook) AddFallback(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.families[name]; !ok {
		return fmt.Errorf("font family %q is not registered", name)
	}
	for _, n := range b.chain {
		if n == name {
			return nil
		}
	}
	b.chain = append(b.chain, name)
	return nil
}

// SetFallbacks replaces the whole chain, the embedded symbols family
// included. An empty call leaves each family on its own glyphs.
func (b *FontBook) SetFallbacks(names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range names {
		if _, ok := b.families[n]; !ok {
			return fmt.Errorf("font family %q is not registered", n)
		}
	}
	b.chain = append([]string(nil), names...)
	b.lastResort = nil
	return nil
}

// Fallbacks lists the chain in lookup order.
func (b *FontBook) Fallbacks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append(append([]string(nil), b.chain...), b.lastResort...)
}

// RegisterSystemFallbacks looks for well known CJK and symbol fonts in the
// user and system font directories and adds each one found to the chain.
// It returns the families added.
func (b *FontBook) RegisterSystemFallbacks() []string {
	byName := make(map[string]string)
	for _, p := range findfont.List() {
		base := strings.ToLower(filepath.Base(p))
		if _, ok := byName[base]; !ok {
			byName[base] = p
		}
	}

	var added []string
	for _, cand := range systemFallbacks {
		if b.Has(cand.family) {
			continue
		}
		for _, file := range cand.files {
			path, ok := byName[strings.ToLower(file)]
			if !ok {
				continue
			}
			if err := b.RegisterFile(cand.family, path, "", false); err != nil {
				continue
			}
			if err := b.AddFallback(cand.family); err == nil {
				added = append(added, cand.family)
			}
			break
		}
	}
	return added
}

// Has reports whether a family is registered.
func (b *FontBook) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.families[name]
	return ok
}

// Families lists registered family names in sorted order.
func (b *FontBook) Families() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.families))
	for n := range b.families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsDisplay reports whether a family forces normal weight.
func (b *FontBook) IsDisplay(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if f, ok := b.families[name]; ok {
		return f.Display
	}
	return scene.IsDisplayFamily(name)
}

// Face returns a face of the family at size pixels. Unknown families fall
// back to Go Sans.
func (b *FontBook) Face(family string, weight int, size float64) (font.Face, error) {
	b.mu.RLock()
	fam := b.lookup(family)
	b.mu.RUnlock()
	if fam == nil {
		return nil, fmt.Errorf("no font registered for %q", family)
	}
	return newFace(fam.pick(weight), size)
}

// Missing returns the characters of s that neither family nor any
// fallback can draw.
func (b *FontBook) Missing(family string, weight int, s string) []rune {
	b.mu.RLock()
	order := b.order(family)
	b.mu.RUnlock()

	var (
		buf     sfnt.Buffer
		missing []rune
		seen    = make(map[rune]bool)
	)
	for _, r := range s {
		if seen[r] {
			continue
		}
		seen[r] = true
		if ignorable(r) || unicode.IsSpace(r) {
			continue
		}
		if coverIndex(&buf, order, weight, r) < 0 {
			missing = append(missing, r)
		}
	}
	return missing
}

// Run shapes s into a measured line, switching to a fallback family for
// every character the requested family cannot draw. Characters no family
// covers are drawn with the requested family and reported in the run.
func (b *FontBook) Run(family string, weight int, size float64, s string) (textRun, error) {
	b.mu.RLock()
	order := b.order(family)
	b.mu.RUnlock()
	if len(order) == 0 {
		return textRun{}, fmt.Errorf("no font registered for %q", family)
	}

	var (
		buf     sfnt.Buffer
		spans   []span
		missing []rune
	)
	for _, r := range s {
		if ignorable(r) {
			continue
		}
		idx := coverIndex(&buf, order, weight, r)
		if idx < 0 {
			if !unicode.IsSpace(r) && !containsRune(missing, r) {
				missing = append(missing, r)
			}
			idx = 0
		}
		if n := len(spans); n > 0 && spans[n-1].font == idx {
			spans[n-1].text += string(r)
			continue
		}
		spans = append(spans, span{font: idx, text: string(r)})
	}

	faces := make(map[int]font.Face)
	segs := make([]textSegment, 0, len(spans))
	for _, sp := range spans {
		face, ok := faces[sp.font]
		if !ok {
			var err error
			if face, err = newFace(order[sp.font].pick(weight), size); err != nil {
				return textRun{}, err
			}
			faces[sp.font] = face
		}
		segs = append(segs, textSegment{text: sp.text, face: face})
	}
	if len(segs) == 0 {
		face, err := newFace(order[0].pick(weight), size)
		if err != nil {
			return textRun{}, err
		}
		segs = append(segs, textSegment{face: face})
	}

	run := measureSegments(size, s, segs)
	run.missing = missing
	return run, nil
}

type span struct {
	font int
	text string
}

// lookup resolves a family, falling back to Go Sans. Callers hold b.mu.
func (b *FontBook) lookup(family string) *Family {
	if fam, ok := b.families[family]; ok {
		return fam
	}
	return b.families[b.fallback]
}

// order is the requested family followed by the chain. Callers hold b.mu.
func (b *FontBook) order(family string) []*Family {
	var out []*Family
	seen := make(map[*Family]bool)
	add := func(f *Family) {
		if f != nil && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	add(b.lookup(family))
	for _, n := range b.chain {
		add(b.families[n])
	}
	for _, n := range b.lastResort {
		add(b.families[n])
	}
	return out
}

// coverIndex returns the position in order of the first family with a glyph
// for r, or -1.
func coverIndex(buf *sfnt.Buffer, order []*Family, weight int, r rune) int {
	for i, f := range order {
		if g, err := f.pick(weight).GlyphIndex(buf, r); err == nil && g != 0 {
			return i
		}
	}
	return -1
}

// ignorable reports format characters that select presentation and draw
// nothing of their own: variation selectors and joiners.
func ignorable(r rune) bool {
	return unicode.Is(unicode.Variation_Selector, r) || r == '\u200d' || r == '\u200c'
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}
