package render

import (
	"image/color"
	"math"

	"github.com/matzehuels/backdrop/pkg/resolve"
)

// Box is an axis-aligned rectangle in canvas pixels, y growing downwards.
type Box struct {
	Left, Top, Right, Bottom float64
}

func (b Box) Width() float64   { return b.Right - b.Left }
func (b Box) Height() float64  { return b.Bottom - b.Top }
func (b Box) CenterX() float64 { return (b.Left + b.Right) / 2 }
func (b Box) CenterY() float64 { return (b.Top + b.Bottom) / 2 }

func boxAt(x, y, w, h float64) Box {
	return Box{Left: x, Top: y, Right: x + w, Bottom: y + h}
}

// Fit is how the background image fills its area.
type Fit int

const (
	// FitContain shows the whole image, letterboxed.
	FitContain Fit = iota
	// FitCover fills the whole area, cropping the overflow.
	FitCover
)

func (f Fit) String() string {
	if f == FitCover {
		return "cover"
	}
	return "contain"
}

// Background places the template's background image on the canvas.
type Background struct {
	Fit Fit
	// Area is the region the image is fitted into.
	Area Box
	// Box is where the whole decoded image lands; with FitCover it may
	// extend past Area. Zero when the image was not decoded.
	Box Box
	// Native pixel size of the decoded image.
	ImageWidth, ImageHeight int
}

// Place fits an image of w×h pixels into the area.
func (b Background) Place(w, h int) Box {
	return FitBox(w, h, b.Area, b.Fit)
}

// FitBox scales a w×h image into area, keeping its aspect ratio, and
// centres it.
func FitBox(w, h int, area Box, fit Fit) Box {
	if w <= 0 || h <= 0 {
		return area
	}
	sx := area.Width() / float64(w)
	sy := area.Height() / float64(h)
	s := math.Min(sx, sy)
	if fit == FitCover {
		s = math.Max(sx, sy)
	}
	dw, dh := float64(w)*s, float64(h)*s
	return boxAt(area.CenterX()-dw/2, area.CenterY()-dh/2, dw, dh)
}

// Item is one laid-out line of text.
type Item struct {
	ID    string
	Field string
	Value string

	// Box is the text's layout box.
	Box Box
	// TextX is where the line starts; it differs from Box.Left when the
	// box is wider than the text and the alignment is not left.
	TextX float64
	// Baseline is the absolute y of the text baseline.
	Baseline float64
	// TextWidth includes letter spacing.
	TextWidth float64

	Style resolve.Style
	Color color.NRGBA
}

// Scene is a fully positioned frame ready for drawing.
type Scene struct {
	TemplateID string
	Mode       resolve.Mode
	Scale      float64

	// Width and Height are the canvas size in pixels.
	Width, Height float64
	// Area is the template's scaled native rectangle on the canvas.
	Area Box
	// Fill paints the canvas before the background; zero means transparent.
	Fill color.NRGBA

	Background Background
	// BackgroundErr is set when the background could not be decoded. The
	// scene is still usable and draws without it.
	BackgroundErr error

	Items []Item
}

// Item returns the laid-out text for a field.
func (s *Scene) Item(field string) (Item, bool) {
	for _, it := range s.Items {
		if it.Field == field {
			return it, true
		}
	}
	return Item{}, false
}
