package render

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/fonts"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Canvas lengths are millimetres; one unit stands for one pixel, so font
// sizes in pixels are converted to points by the mm→pt factor.
const ptPerUnit = 72 / 25.4

// Painter draws scenes with tdewolff/canvas. Drawing is serialized; the
// font family is shared.
type Painter struct {
	mu     sync.Mutex
	family *canvas.FontFamily
}

// NewPainter loads both weights of set.
func NewPainter(set fonts.Set) (*Painter, error) {
	family := canvas.NewFontFamily(fonts.FamilyName)
	if err := family.LoadFont(set.Regular, 0, canvas.FontRegular); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load regular font")
	}
	if err := family.LoadFont(set.Bold, 0, canvas.FontBold); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load bold font")
	}
	return &Painter{family: family}, nil
}

var defaultPainter = sync.OnceValues(func() (*Painter, error) {
	return NewPainter(fonts.Default())
})

// DefaultPainter returns a shared painter over the built-in fonts.
func DefaultPainter() (*Painter, error) {
	return defaultPainter()
}

// Shade picks the color and offset an item is drawn with on a text layer.
// Items for which ok is false are left out.
type Shade func(it Item) (c color.NRGBA, dx, dy float64, ok bool)

// Canvas draws the fill, the background and every text of s. bg may be nil.
func (p *Painter) Canvas(s *Scene, bg image.Image) *canvas.Canvas {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := canvas.New(s.Width, s.Height)
	ctx := canvas.NewContext(c)
	if s.Fill.A > 0 {
		ctx.SetFillColor(s.Fill)
		ctx.DrawPath(0, 0, canvas.Rectangle(s.Width, s.Height))
	}
	if bg != nil {
		b := bg.Bounds()
		p.drawImage(ctx, s, bg, s.Background.Place(b.Dx(), b.Dy()))
	}
	for _, it := range s.Items {
		p.drawText(ctx, s, it, it.Color, 0, 0)
	}
	return c
}

// TextLayer draws only the texts of s on a transparent canvas.
func (p *Painter) TextLayer(s *Scene, shade Shade) *canvas.Canvas {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := canvas.New(s.Width, s.Height)
	ctx := canvas.NewContext(c)
	for _, it := range s.Items {
		col, dx, dy, ok := shade(it)
		if !ok {
			continue
		}
		p.drawText(ctx, s, it, col, dx, dy)
	}
	return c
}

// WriteSVG writes s as a vector preview. Text shadows are not part of the
// vector output.
func (p *Painter) WriteSVG(w io.Writer, s *Scene, bg image.Image) error {
	c := p.Canvas(s, bg)
	out := svg.New(w, s.Width, s.Height, nil)
	c.RenderTo(out)
	if err := out.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write svg")
	}
	return nil
}

// WriteSVG writes s with the default painter.
func WriteSVG(w io.Writer, s *Scene, bg image.Image) error {
	p, err := DefaultPainter()
	if err != nil {
		return err
	}
	return p.WriteSVG(w, s, bg)
}

// DecodeBackground decodes an embedded background image.
func DecodeBackground(img template.Image) (image.Image, error) {
	if !img.Embedded() {
		return nil, errors.New(errors.ErrCodeDataLoad, "background is not embedded")
	}
	out, err := imaging.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "decode background")
	}
	return out, nil
}

// drawImage maps the top-left based box onto canvas' bottom-left origin.
func (p *Painter) drawImage(ctx *canvas.Context, s *Scene, img image.Image, b Box) {
	if b.Width() <= 0 {
		return
	}
	dpmm := float64(img.Bounds().Dx()) / b.Width()
	ctx.DrawImage(b.Left, s.Height-b.Bottom, img, canvas.DPMM(dpmm))
}

func (p *Painter) face(it Item, col color.NRGBA) *canvas.FontFace {
	style := canvas.FontRegular
	if it.Style.FontWeight >= fonts.BoldThreshold {
		style = canvas.FontBold
	}
	return p.family.Face(it.Style.FontSize*ptPerUnit, col, style, canvas.FontNormal)
}

func (p *Painter) drawText(ctx *canvas.Context, s *Scene, it Item, col color.NRGBA, dx, dy float64) {
	face := p.face(it, col)
	x, y := it.TextX+dx, s.Height-(it.Baseline+dy)
	if it.Style.LetterSpacing == 0 {
		ctx.DrawText(x, y, canvas.NewTextLine(face, it.Value, canvas.Left))
		return
	}
	spacing := it.Style.LetterSpacing * it.Style.FontSize
	for _, r := range it.Value {
		ch := string(r)
		ctx.DrawText(x, y, canvas.NewTextLine(face, ch, canvas.Left))
		x += face.TextWidth(ch) + spacing
	}
}
