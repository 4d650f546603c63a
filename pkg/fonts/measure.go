package fonts

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Metrics are vertical font metrics in pixels for one size.
// Descent is positive (distance below the baseline).
type Metrics struct {
	Ascent  float64
	Descent float64
}

// Measurer measures text with opentype faces. It is safe for concurrent
// use; faces are created lazily per (size, weight) and reused.
type Measurer struct {
	regular *opentype.Font
	bold    *opentype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

type faceKey struct {
	size float64
	bold bool
}

// NewMeasurer parses both fonts of s.
func NewMeasurer(s Set) (*Measurer, error) {
	regular, err := opentype.Parse(s.Regular)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(s.Bold)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Measurer{regular: regular, bold: bold, faces: make(map[faceKey]font.Face)}, nil
}

// Width returns the advance width of s in pixels, without letter spacing.
// Runes the font has no glyph for advance like its .notdef glyph.
func (m *Measurer) Width(s string, size float64, weight int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	face, err := m.face(size, weight)
	if err != nil {
		return 0
	}
	var w fixed.Int26_6
	prev := rune(-1)
	for _, r := range s {
		if prev >= 0 {
			w += face.Kern(prev, r)
		}
		w += advance(face, r, size)
		prev = r
	}
	return toFloat(w)
}

// RuneWidth returns the advance of a single rune in pixels.
func (m *Measurer) RuneWidth(r rune, size float64, weight int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	face, err := m.face(size, weight)
	if err != nil {
		return 0
	}
	return toFloat(advance(face, r, size))
}

// Metrics returns ascent and descent for the given size.
func (m *Measurer) Metrics(size float64, weight int) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	face, err := m.face(size, weight)
	if err != nil {
		return Metrics{Ascent: size * 0.8, Descent: size * 0.2}
	}
	fm := face.Metrics()
	return Metrics{Ascent: toFloat(fm.Ascent), Descent: toFloat(fm.Descent)}
}

// Close releases every cached face.
func (m *Measurer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, f := range m.faces {
		_ = f.Close()
		delete(m.faces, k)
	}
	return nil
}

// face must be called with mu held.
func (m *Measurer) face(size float64, weight int) (font.Face, error) {
	key := faceKey{size: size, bold: weight >= BoldThreshold}
	if f, ok := m.faces[key]; ok {
		return f, nil
	}
	src := m.regular
	if key.bold {
		src = m.bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	m.faces[key] = f
	return f, nil
}

// advance returns the advance of r. For a rune the font lacks the face still
// reports the .notdef advance, which is what the painters draw; one em is
// used only when the font has no usable .notdef glyph.
func advance(face font.Face, r rune, size float64) fixed.Int26_6 {
	adv, ok := face.GlyphAdvance(r)
	if ok || adv > 0 {
		return adv
	}
	return fixed.Int26_6(size * 64)
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
