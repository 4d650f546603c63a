// Package templatetest builds in-memory templates for tests.
//
// [Basic] mirrors the structure of the production designs: a right-anchored
// "info" column holding a "profile" block with the name rows (frames 54262
// and 54263) above the team rows (frame 54269). [Flat] has no auto-layout
// frames and exercises the unstructured path.
package templatetest

import (
	"bytes"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/backdrop/pkg/template"
)

// Native size of the full-size fixtures.
const (
	Width  = 1920
	Height = 1080
)

// Background returns an encoded PNG of the given size filled with c.
func Background(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BackgroundColor is the fill of fixture backgrounds.
var BackgroundColor = color.NRGBA{R: 0x1e, G: 0x3a, B: 0x5f, A: 0xff}

// Basic returns the framed fixture at 1920×1080.
func Basic() *template.Template {
	return basic("basic", 1)
}

// Small returns [Basic] scaled down by four (480×270) for raster tests.
func Small() *template.Template {
	return basic("small", 0.25)
}

// Flat returns a 1920×1080 fixture without frames.
func Flat() *template.Template {
	k := 1.0
	l := &template.Layout{
		Width:  Width,
		Height: Height,
		TextLayers: map[string]*template.TextField{
			"last_name_jp":  text("1:1", "last_name_jp", k, 1400, 200, 200, 96, 80, 700, right()),
			"first_name_jp": text("1:2", "first_name_jp", k, 1620, 200, 200, 96, 80, 700, right()),
			"last_name_en":  text("1:3", "last_name_en", k, 1400, 320, 200, 48, 36, 700, center()),
			"first_name_en": text("1:4", "first_name_en", k, 1620, 320, 200, 48, 36, 700, center()),
			"role":          text("1:5", "role", k, 80, 900, 400, 32, 24, 400, nil),
		},
		Frames: map[string]*template.Frame{},
	}
	return l.Template(template.Meta{ID: "flat", DisplayName: "Flat", NodeID: "1-0"},
		template.Image{Data: Background(Width, Height, BackgroundColor), MediaType: "image/png"})
}

func basic(id string, k float64) *template.Template {
	w, h := int(Width*k), int(Height*k)

	lastJP := text("10:1", "last_name_jp", k, 1300, 144, 240, 96, 80, 700, nil)
	lastJP.LineHeight = template.LineHeight{Unit: template.LineHeightPixels, Value: 96 * k}
	firstJP := text("10:2", "first_name_jp", k, 1564, 144, 244, 96, 80, 700, nil)
	firstJP.LineHeight = lastJP.LineHeight
	lastEN := text("10:3", "last_name_en", k, 1400, 248, 200, 48, 36, 700, nil)
	lastEN.LineHeight = template.LineHeight{Unit: template.LineHeightPercent, Value: 120}
	firstEN := text("10:4", "first_name_en", k, 1616, 248, 192, 48, 36, 700, nil)
	firstEN.LineHeight = lastEN.LineHeight
	dept1 := text("10:5", "department_1", k, 1400, 374, 200, 32, 24, 400, nil)
	dept2 := text("10:6", "department_2", k, 1616, 374, 192, 32, 24, 400, nil)
	group := text("10:7", "group", k, 1400, 414, 408, 32, 24, 400, nil)
	role := text("10:8", "role", k, 1400, 466, 408, 32, 24, 400, nil)
	for _, t := range []*template.TextField{dept1, dept2, group, role} {
		t.Fills = []template.Paint{solid(1, 1, 1, 0.9)}
	}

	parent := map[*template.TextField]string{
		lastJP: "20:5", firstJP: "20:5", lastEN: "20:6", firstEN: "20:6",
		dept1: "20:10", dept2: "20:10", group: "20:11", role: "20:7",
	}
	for t, p := range parent {
		t.ParentID = p
	}

	frames := []*template.Frame{
		frame("20:1", "info", k, 1152, 120, 680, 420, template.LayoutVertical, func(f *template.Frame) {
			f.CounterAxisAlignItems = template.AlignMax
			f.Constraints = &template.Constraints{Horizontal: template.ConstraintRight, Vertical: "TOP"}
			f.PaddingLeft, f.PaddingRight, f.PaddingTop, f.PaddingBottom = 24*k, 24*k, 24*k, 24*k
			f.ChildFrames = []string{"20:2"}
		}),
		frame("20:2", "profile", k, 1176, 144, 632, 372, template.LayoutVertical, func(f *template.Frame) {
			f.PaddingTop, f.PaddingBottom = 8*k, 8*k
			f.ChildFrames = []string{"20:3", "20:7"}
		}),
		frame("20:3", "name", k, 1176, 144, 632, 200, template.LayoutVertical, func(f *template.Frame) {
			f.ChildFrames = []string{"20:4"}
		}),
		frame("20:4", "frame 1", k, 1176, 144, 632, 200, template.LayoutVertical, func(f *template.Frame) {
			f.ItemSpacing = ptr(8 * k)
			f.CounterAxisAlignItems = template.AlignMax
			f.ChildFrames = []string{"20:5", "20:6"}
		}),
		frame("20:5", "Frame 54262", k, 1300, 144, 508, 96, template.LayoutHorizontal, func(f *template.Frame) {
			f.ItemSpacing = ptr(24 * k)
			f.Children = []string{"10:2", "10:1"}
		}),
		frame("20:6", "Frame 54263", k, 1400, 248, 408, 48, template.LayoutHorizontal, func(f *template.Frame) {
			f.ItemSpacing = ptr(16 * k)
			f.Children = []string{"10:3", "10:4"}
		}),
		frame("20:7", "team", k, 1176, 374, 632, 140, template.LayoutVertical, func(f *template.Frame) {
			f.ItemSpacing = ptr(12 * k)
			f.Children = []string{"10:8"}
			f.ChildFrames = []string{"20:8"}
		}),
		frame("20:8", "frame", k, 1176, 374, 632, 80, template.LayoutVertical, func(f *template.Frame) {
			f.CounterAxisAlignItems = template.AlignMax
			f.ChildFrames = []string{"20:9"}
		}),
		frame("20:9", "Frame 54269", k, 1400, 374, 408, 80, template.LayoutVertical, func(f *template.Frame) {
			f.ItemSpacing = ptr(8 * k)
			f.ChildFrames = []string{"20:11", "20:10"}
		}),
		frame("20:10", "Frame 54270", k, 1400, 414, 408, 32, template.LayoutHorizontal, func(f *template.Frame) {
			f.ItemSpacing = ptr(16 * k)
			f.Children = []string{"10:5", "10:6"}
		}),
		frame("20:11", "Frame 54271", k, 1400, 374, 408, 32, template.LayoutHorizontal, func(f *template.Frame) {
			f.Children = []string{"10:7"}
		}),
	}

	l := &template.Layout{
		Width:      Width * k,
		Height:     Height * k,
		TextLayers: map[string]*template.TextField{},
		Frames:     map[string]*template.Frame{},
	}
	for _, t := range []*template.TextField{lastJP, firstJP, lastEN, firstEN, dept1, dept2, group, role} {
		l.TextLayers[t.Field] = t
	}
	for _, f := range frames {
		l.Frames[f.ID] = f
	}
	return l.Template(template.Meta{ID: id, DisplayName: "Basic", NodeID: "41-6091"},
		template.Image{Data: Background(w, h, BackgroundColor), MediaType: "image/png"})
}

func text(id, field string, k, x, y, w, h, size, weight float64, c *template.Constraints) *template.TextField {
	return &template.TextField{
		ID:                  id,
		Name:                "#" + field,
		Field:               field,
		X:                   x * k,
		Y:                   y * k,
		Width:               w * k,
		Height:              h * k,
		FontSize:            size * k,
		FontWeight:          weight,
		FontFamily:          "Inter",
		TextAlignHorizontal: "LEFT",
		TextAlignVertical:   "TOP",
		Fills:               []template.Paint{solid(1, 1, 1, 1)},
		LineHeight:          template.LineHeight{Unit: template.LineHeightAuto},
		Constraints:         c,
	}
}

func frame(id, name string, k, x, y, w, h float64, mode template.LayoutMode, opt func(*template.Frame)) *template.Frame {
	f := &template.Frame{
		ID:         id,
		Name:       name,
		X:          x * k,
		Y:          y * k,
		Width:      w * k,
		Height:     h * k,
		LayoutMode: mode,
		Children:   []string{},
	}
	opt(f)
	return f
}

func solid(r, g, b, opacity float64) template.Paint {
	return template.Paint{Type: "SOLID", Color: &template.Color{R: r, G: g, B: b, A: 1}, Opacity: ptr(opacity)}
}

func right() *template.Constraints {
	return &template.Constraints{Horizontal: template.ConstraintRight, Vertical: "TOP"}
}

func center() *template.Constraints {
	return &template.Constraints{Horizontal: template.ConstraintCenter, Vertical: "TOP"}
}

func ptr(v float64) *float64 { return &v }
