package raster

import (
	"context"
	"image"
	"image/color"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Capture rasterizes the vector scene, like a document capture of the
// preview: every shadow layer is drawn and backgrounds must not taint the
// capture.
type Capture struct {
	painter *render.Painter
	loader  *Loader
}

// NewCapture creates a capture rasterizer. The loader is switched to
// same-origin checking.
func NewCapture(p *render.Painter, l *Loader) *Capture {
	if l == nil {
		l = &Loader{}
	}
	cl := *l
	cl.SameOrigin = true
	return &Capture{painter: p, loader: &cl}
}

func (c *Capture) Name() string { return config.RasterizerCapture }

func (c *Capture) Rasterize(ctx context.Context, s *render.Scene, bg template.Image) (*image.RGBA, error) {
	img, err := c.loader.Load(ctx, bg)
	if err != nil {
		return nil, err
	}
	w, h := nativeSize(s)

	base := *s
	base.Items = nil
	out := fit(rasterize(c.painter.Canvas(&base, img)), w, h)

	for _, radius := range glowBlurs(s.Items) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layer := c.painter.TextLayer(s, func(it render.Item) (color.NRGBA, float64, float64, bool) {
			sh, ok := layerWithBlur(it, radius)
			return sh.Color, sh.OffsetX, sh.OffsetY, ok
		})
		drawBlurred(out, rasterize(layer), radius)
	}

	texts := c.painter.TextLayer(s, func(it render.Item) (color.NRGBA, float64, float64, bool) {
		return it.Color, 0, 0, true
	})
	drawBlurred(out, rasterize(texts), 0)
	return out, nil
}

// rasterize rasterizes at one pixel per canvas unit.
func rasterize(c *canvas.Canvas) *image.RGBA {
	return rasterizer.Draw(c, canvas.DPMM(1), canvas.DefaultColorSpace)
}
