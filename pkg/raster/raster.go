// Package raster turns laid-out scenes into bitmaps.
//
// Two rasterizers share the [Rasterizer] interface:
//
//   - [Capture] draws the whole scene as vectors with tdewolff/canvas and
//     rasterizes it, then adds every text-shadow layer as a blurred text
//     mask. Backgrounds must be embedded or same-origin.
//   - [Composite] paints directly with gogpu/gg: an opaque white base, the
//     background full-bleed, one glow layer collapsed to the outermost
//     shadow, then each text line. Remote backgrounds are allowed.
//
// Output always has the template's native pixel size, and identical inputs
// produce identical pixels.
package raster

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"io"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/resolve"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Rasterizer draws a scene over a template background.
type Rasterizer interface {
	Rasterize(ctx context.Context, s *render.Scene, bg template.Image) (*image.RGBA, error)
	Name() string
}

// JPEGQuality is used by [Encode] for JPEG output.
const JPEGQuality = 92

// Encode writes img in the given format (config.FormatPNG or
// config.FormatJPEG).
func Encode(w io.Writer, img image.Image, format string) error {
	var err error
	switch format {
	case "", config.FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG)
	case config.FormatJPEG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	default:
		return errors.New(errors.ErrCodeUnsupported, "unsupported image format %q", format)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode %s", format)
	}
	return nil
}

// EncodeBytes is [Encode] into memory.
func EncodeBytes(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension for a format.
func Extension(format string) string {
	if format == config.FormatJPEG {
		return "jpg"
	}
	return "png"
}

// nativeSize is the output size of a scene in whole pixels.
func nativeSize(s *render.Scene) (int, int) {
	return int(math.Round(s.Width)), int(math.Round(s.Height))
}

// fit copies src over a new w×h canvas so the output size never depends
// on backend rounding.
func fit(src image.Image, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Over)
	return out
}

// glowBlurs returns the distinct blur radii across every item, outermost
// first.
func glowBlurs(items []render.Item) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, it := range items {
		for _, sh := range it.Style.Shadows {
			if !seen[sh.Blur] {
				seen[sh.Blur] = true
				out = append(out, sh.Blur)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// layerWithBlur returns the item's shadow layer with the given radius.
func layerWithBlur(it render.Item, blur float64) (resolve.Shadow, bool) {
	for _, sh := range it.Style.Shadows {
		if sh.Blur == blur {
			return sh, true
		}
	}
	return resolve.Shadow{}, false
}

// drawBlurred spreads a text mask the way a CSS blur radius does (σ = r/2) and
// draws it over dst.
func drawBlurred(dst draw.Image, mask image.Image, radius float64) {
	var spread image.Image = mask
	if radius > 0 {
		spread = imaging.Blur(mask, radius/2)
	}
	draw.Draw(dst, dst.Bounds(), spread, spread.Bounds().Min, draw.Over)
}
