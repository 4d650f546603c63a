package render

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	_ "golang.org/x/image/webp"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/fonts"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/resolve"
	"github.com/matzehuels/backdrop/pkg/template"
)

// PreviewFill is the container color behind a letterboxed preview.
var PreviewFill = color.NRGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff}

// Options configures [Preview] and [Export].
type Options struct {
	Resolve resolve.Options
	// Measurer defaults to the built-in Go fonts.
	Measurer Measurer
}

var defaultMeasurer = sync.OnceValues(func() (*fonts.Measurer, error) {
	return fonts.NewMeasurer(fonts.Default())
})

func (o Options) measurer() (Measurer, error) {
	if o.Measurer != nil {
		return o.Measurer, nil
	}
	m, err := defaultMeasurer()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Preview lays out tpl filled with data inside a containerW×containerH box.
// The template is scaled by min(containerW/W, containerH/H), centred, and
// the background is contain-fitted to the container. A non-positive
// container size previews at native size.
func Preview(tpl *template.Template, data form.Data, containerW, containerH float64, opts Options) (*Scene, error) {
	if containerW <= 0 || containerH <= 0 {
		containerW, containerH = tpl.Width, tpl.Height
	}
	scale := math.Min(containerW/tpl.Width, containerH/tpl.Height)
	m, err := opts.measurer()
	if err != nil {
		return nil, err
	}

	res := resolve.Resolve(tpl, data, scale, resolve.Preview, opts.Resolve)
	s := Layout(res, containerW, containerH, m)
	s.Fill = PreviewFill
	s.Background, s.BackgroundErr = fitBackground(tpl, boxAt(0, 0, containerW, containerH), FitContain)
	return s, nil
}

// Export lays out tpl filled with data at native size with a cover-fitted
// background.
func Export(tpl *template.Template, data form.Data, opts Options) (*Scene, error) {
	m, err := opts.measurer()
	if err != nil {
		return nil, err
	}
	res := resolve.Resolve(tpl, data, 1, resolve.Export, opts.Resolve)
	s := Layout(res, tpl.Width, tpl.Height, m)
	s.Background, s.BackgroundErr = fitBackground(tpl, s.Area, FitCover)
	return s, nil
}

// fitBackground decodes the image header to place the background. Images
// that are not embedded are assumed to match the template's aspect ratio
// until a rasterizer loads them.
func fitBackground(tpl *template.Template, area Box, fit Fit) (Background, error) {
	bg := Background{Fit: fit, Area: area}
	img := tpl.Background
	if !img.Embedded() {
		if img.URL == "" {
			return bg, errors.New(errors.ErrCodeDataLoad, "template %s has no background", tpl.ID)
		}
		bg.Box = FitBox(int(tpl.Width), int(tpl.Height), area, fit)
		return bg, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return bg, errors.Wrap(errors.ErrCodeDataLoad, err, "decode background of %s", tpl.ID)
	}
	bg.ImageWidth, bg.ImageHeight = cfg.Width, cfg.Height
	bg.Box = FitBox(cfg.Width, cfg.Height, area, fit)
	return bg, nil
}
