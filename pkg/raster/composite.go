package raster

import (
	"context"
	"image"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/fonts"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/resolve"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Composite paints scenes directly onto a bitmap. Text colors without a
// fill fall back to black, and the glow is a single layer taken from the
// outermost shadow.
type Composite struct {
	regular *text.FontSource
	bold    *text.FontSource
	loader  *Loader
}

// NewComposite parses the font set. A nil loader only accepts embedded
// backgrounds.
func NewComposite(set fonts.Set, l *Loader) (*Composite, error) {
	regular, err := text.NewFontSource(set.Regular)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load regular font")
	}
	bold, err := text.NewFontSource(set.Bold)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load bold font")
	}
	if l == nil {
		l = &Loader{}
	}
	return &Composite{regular: regular, bold: bold, loader: l}, nil
}

func (c *Composite) Name() string { return config.RasterizerComposite }

// Close releases the font sources.
func (c *Composite) Close() error {
	_ = c.regular.Close()
	return c.bold.Close()
}

func (c *Composite) Rasterize(ctx context.Context, s *render.Scene, bg template.Image) (*image.RGBA, error) {
	img, err := c.loader.Load(ctx, bg)
	if err != nil {
		return nil, err
	}
	w, h := nativeSize(s)

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	if err := dc.Fill(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "fill base")
	}

	b := img.Bounds()
	box := s.Background.Place(b.Dx(), b.Dy())
	dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:             box.Left,
		Y:             box.Top,
		DstWidth:      box.Width(),
		DstHeight:     box.Height(),
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if glow := c.glow(s, w, h); glow != nil {
		dc.DrawImage(gg.ImageBufFromImage(glow), 0, 0)
	}

	for _, it := range s.Items {
		dc.SetColor(it.Style.ColorFor(resolve.CanvasFallback))
		c.drawLine(dc, it, 0, 0)
	}
	return fit(dc.Image(), w, h), nil
}

// glow draws the outermost shadow of every shadowed item on a transparent
// layer and blurs it. It returns nil when nothing glows.
func (c *Composite) glow(s *render.Scene, w, h int) image.Image {
	layer := gg.NewContext(w, h)
	defer layer.Close()

	radius := 0.0
	drawn := false
	for _, it := range s.Items {
		sh, ok := resolve.Outermost(it.Style.Shadows)
		if !ok {
			continue
		}
		layer.SetColor(sh.Color)
		c.drawLine(layer, it, sh.OffsetX, sh.OffsetY)
		radius = max(radius, sh.Blur)
		drawn = true
	}
	if !drawn {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	drawBlurred(out, layer.Image(), radius)
	return out
}

func (c *Composite) face(it render.Item) text.Face {
	src := c.regular
	if it.Style.FontWeight >= fonts.BoldThreshold {
		src = c.bold
	}
	return src.Face(it.Style.FontSize)
}

// drawLine draws one line, advancing glyph by glyph when letter spacing is
// set.
func (c *Composite) drawLine(dc *gg.Context, it render.Item, dx, dy float64) {
	face := c.face(it)
	dc.SetFont(face)
	x, y := it.TextX+dx, it.Baseline+dy
	if it.Style.LetterSpacing == 0 {
		dc.DrawString(it.Value, x, y)
		return
	}
	spacing := it.Style.LetterSpacing * it.Style.FontSize
	for _, r := range it.Value {
		ch := string(r)
		dc.DrawString(ch, x, y)
		x += face.Advance(ch) + spacing
	}
}
