package resolve

import (
	"image/color"
	"math"
	"strings"

	"github.com/matzehuels/backdrop/pkg/template"
)

// Mode selects between the scaled on-screen preview and the native-size export.
type Mode int

const (
	Preview Mode = iota
	Export
)

func (m Mode) String() string {
	if m == Export {
		return "export"
	}
	return "preview"
}

// Align is a flex alignment value.
type Align string

const (
	AlignAuto         Align = ""
	AlignStart        Align = "start"
	AlignCenter       Align = "center"
	AlignEnd          Align = "end"
	AlignSpaceBetween Align = "space-between"
	AlignStretch      Align = "stretch"
)

var validAligns = map[Align]bool{
	AlignAuto: true, AlignStart: true, AlignCenter: true,
	AlignEnd: true, AlignSpaceBetween: true, AlignStretch: true,
}

// TextAlign is the horizontal alignment of a line inside its box.
type TextAlign string

const (
	TextLeft   TextAlign = "left"
	TextCenter TextAlign = "center"
	TextRight  TextAlign = "right"
)

func textAlignOf(s string) TextAlign {
	switch strings.ToLower(s) {
	case "right":
		return TextRight
	case "center":
		return TextCenter
	}
	return TextLeft
}

// Anchor is the horizontal edge an absolutely placed node is pinned to.
type Anchor int

const (
	AnchorLeft Anchor = iota
	AnchorCenter
	AnchorRight
)

func (a Anchor) String() string {
	switch a {
	case AnchorCenter:
		return "center"
	case AnchorRight:
		return "right"
	}
	return "left"
}

// Position places a node on the canvas. Offset is the left edge for
// AnchorLeft, the horizontal centre for AnchorCenter, and the distance from
// the canvas' right edge for AnchorRight. All values are scaled pixels.
type Position struct {
	Anchor Anchor
	Offset float64
	Top    float64
}

// Padding in scaled pixels.
type Padding struct {
	Top, Right, Bottom, Left float64
}

// Shadow is one text-shadow layer. Lengths are unscaled pixels.
type Shadow struct {
	OffsetX float64
	OffsetY float64
	Blur    float64
	Color   color.NRGBA
}

// Fallback text colors when a field has no solid fill.
var (
	PanelFallback  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	CanvasFallback = color.NRGBA{A: 0xff}
)

// Style is the resolved typography of a text node.
type Style struct {
	FontSize      float64 // scaled px
	FontWeight    int
	FontFamily    string
	LineHeight    float64 // multiple of FontSize
	LetterSpacing float64 // em
	TextAlign     TextAlign
	Shadows       []Shadow

	// Color is valid when HasColor is set; see [Style.ColorFor].
	Color    color.NRGBA
	HasColor bool

	// Flex item hints for texts inside frames.
	AlignSelf Align
	FlexGrow  float64
}

// ColorFor returns the fill color or fallback.
func (s Style) ColorFor(fallback color.NRGBA) color.NRGBA {
	if s.HasColor {
		return s.Color
	}
	return fallback
}

// paintColor maps the first paint to a color when it is SOLID.
func paintColor(fills []template.Paint) (color.NRGBA, bool) {
	if len(fills) == 0 {
		return color.NRGBA{}, false
	}
	p := fills[0]
	if p.Type != "SOLID" || p.Color == nil {
		return color.NRGBA{}, false
	}
	opacity := 1.0
	if p.Opacity != nil {
		opacity = *p.Opacity
	}
	return color.NRGBA{
		R: channel(p.Color.R),
		G: channel(p.Color.G),
		B: channel(p.Color.B),
		A: channel(opacity),
	}, true
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// Node is a resolved [*Text] or [*Frame].
type Node interface {
	NodeID() string
}

// Text is a visible text node.
type Text struct {
	ID    string
	Field string
	Value string
	Style Style

	// Position is set for texts placed outside any frame.
	Position *Position
	// Box is the scaled design size of the text layer.
	Width, Height float64
}

// NodeID implements [Node].
func (t *Text) NodeID() string { return t.ID }

// Frame is a visible flex container.
type Frame struct {
	ID         string
	Name       string
	Horizontal bool
	Gap        float64
	AlignItems Align
	Justify    Align
	Padding    Padding
	MarginTop  float64

	// Position and MinWidth are set on top-level frames only.
	Position *Position
	MinWidth float64

	// Flex item hints for nested frames.
	AlignSelf Align
	FlexGrow  float64

	// Children holds texts first, then frames, each in layout order.
	Children []Node
}

// NodeID implements [Node].
func (f *Frame) NodeID() string { return f.ID }

// Result is the resolved tree for one (template, form, scale, mode).
type Result struct {
	TemplateID string
	Mode       Mode
	Scale      float64

	// Width and Height are the template's native size times Scale.
	Width, Height float64

	Roots []Node

	// Unstructured is set when the template has no frames and every text
	// was placed by its own constraint.
	Unstructured bool
}

// Texts returns every text in the result in depth-first order.
func (r *Result) Texts() []*Text {
	var out []*Text
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Text:
			out = append(out, v)
		case *Frame:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	for _, n := range r.Roots {
		walk(n)
	}
	return out
}

// Find returns the node with the given id.
func (r *Result) Find(id string) Node {
	var found Node
	var walk func(Node) bool
	walk = func(n Node) bool {
		if n.NodeID() == id {
			found = n
			return true
		}
		if f, ok := n.(*Frame); ok {
			for _, c := range f.Children {
				if walk(c) {
					return true
				}
			}
		}
		return false
	}
	for _, n := range r.Roots {
		if walk(n) {
			break
		}
	}
	return found
}
