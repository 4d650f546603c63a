package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/fonts"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/httputil"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/template"
	"github.com/matzehuels/backdrop/pkg/template/templatetest"
)

func suzuki() form.Data {
	return form.Data{
		LastNameJP:        "Suzuki",
		FirstNameJP:       "Hana",
		LastNameEN:        "Suzuki",
		FirstNameEN:       "Hana",
		SelectedTemplates: []string{"small"},
	}
}

func rasterizers(t *testing.T, l *Loader) []Rasterizer {
	t.Helper()
	p, err := render.NewPainter(fonts.Default())
	if err != nil {
		t.Fatalf("NewPainter: %v", err)
	}
	comp, err := NewComposite(fonts.Default(), l)
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}
	t.Cleanup(func() { _ = comp.Close() })
	return []Rasterizer{NewCapture(p, l), comp}
}

func exportScene(t *testing.T, tpl *template.Template, d form.Data) *render.Scene {
	t.Helper()
	s, err := render.Export(tpl, d, render.Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return s
}

func near(a, b color.NRGBA, tol int) bool {
	d := func(x, y uint8) bool { return max(int(x)-int(y), int(y)-int(x)) <= tol }
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && d(a.A, b.A)
}

func newClient() *httputil.Client {
	return httputil.NewClient(cache.NewNullCache(), "bg", 0, nil)
}

func TestRasterizeNativeSize(t *testing.T) {
	tpl := templatetest.Small()
	s := exportScene(t, tpl, suzuki())

	for _, r := range rasterizers(t, nil) {
		t.Run(r.Name(), func(t *testing.T) {
			img, err := r.Rasterize(context.Background(), s, tpl.Background)
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			if got := img.Bounds().Size(); got != image.Pt(480, 270) {
				t.Errorf("size = %v, want 480x270", got)
			}
			// Top-left corner is plain background.
			c := color.NRGBAModel.Convert(img.At(2, 2)).(color.NRGBA)
			if !near(c, templatetest.BackgroundColor, 2) {
				t.Errorf("corner = %v, want %v", c, templatetest.BackgroundColor)
			}
		})
	}
}

func TestRasterizeDeterministic(t *testing.T) {
	tpl := templatetest.Small()
	s := exportScene(t, tpl, suzuki())

	for _, r := range rasterizers(t, nil) {
		t.Run(r.Name(), func(t *testing.T) {
			var outs [][]byte
			for range 2 {
				img, err := r.Rasterize(context.Background(), s, tpl.Background)
				if err != nil {
					t.Fatalf("Rasterize: %v", err)
				}
				data, err := EncodeBytes(img, config.FormatPNG)
				if err != nil {
					t.Fatalf("EncodeBytes: %v", err)
				}
				outs = append(outs, data)
			}
			if !bytes.Equal(outs[0], outs[1]) {
				t.Error("two renders of the same input differ")
			}
		})
	}
}

func TestRasterizeWhitespaceRoleMatchesEmpty(t *testing.T) {
	tpl := templatetest.Small()
	blank := suzuki()
	blank.Role = "   "

	for _, r := range rasterizers(t, nil) {
		t.Run(r.Name(), func(t *testing.T) {
			a, err := r.Rasterize(context.Background(), exportScene(t, tpl, suzuki()), tpl.Background)
			if err != nil {
				t.Fatal(err)
			}
			b, err := r.Rasterize(context.Background(), exportScene(t, tpl, blank), tpl.Background)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(a.Pix, b.Pix) {
				t.Error("whitespace role changed the output")
			}
		})
	}
}

func TestRasterizeRoleChangesOnlyItsBox(t *testing.T) {
	tpl := templatetest.Small()
	withRole := suzuki()
	withRole.Role = "Lead"

	base := exportScene(t, tpl, suzuki())
	next := exportScene(t, tpl, withRole)
	role, ok := next.Item("role")
	if !ok {
		t.Fatal("role item missing")
	}
	for _, it := range base.Items {
		moved, ok := next.Item(it.Field)
		if !ok || moved.Box != it.Box {
			t.Fatalf("%s moved from %+v to %+v", it.Field, it.Box, moved.Box)
		}
	}

	const slack = 4
	allowed := image.Rect(
		int(role.Box.Left)-slack, int(role.Box.Top)-slack,
		int(role.Box.Right)+slack+1, int(role.Box.Bottom)+slack+1,
	)

	for _, r := range rasterizers(t, nil) {
		t.Run(r.Name(), func(t *testing.T) {
			a, err := r.Rasterize(context.Background(), base, tpl.Background)
			if err != nil {
				t.Fatal(err)
			}
			b, err := r.Rasterize(context.Background(), next, tpl.Background)
			if err != nil {
				t.Fatal(err)
			}
			changed := 0
			bounds := a.Bounds()
			for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					if a.RGBAAt(x, y) == b.RGBAAt(x, y) {
						continue
					}
					changed++
					if !image.Pt(x, y).In(allowed) {
						t.Fatalf("pixel (%d,%d) changed outside role box %v", x, y, allowed)
					}
				}
			}
			if changed == 0 {
				t.Error("role text left no pixels")
			}
		})
	}
}

func TestRasterizeJapaneseNameFillsLayoutWidth(t *testing.T) {
	tpl := templatetest.Flat()
	d := suzuki()
	d.LastNameJP, d.FirstNameJP = "田中", "花子"
	s := exportScene(t, tpl, d)

	it, ok := s.Item("last_name_jp")
	if !ok {
		t.Fatal("last_name_jp item missing")
	}
	size := it.Style.FontSize
	end := it.TextX + it.TextWidth
	const slack = 4

	for _, r := range rasterizers(t, nil) {
		t.Run(r.Name(), func(t *testing.T) {
			img, err := r.Rasterize(context.Background(), s, tpl.Background)
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			if got := img.Bounds().Size(); got != image.Pt(1920, 1080) {
				t.Fatalf("size = %v, want 1920x1080", got)
			}

			left, right := -1, -1
			for y := int(it.Box.Top); y < int(it.Box.Bottom); y++ {
				for x := int(it.Box.Left) - slack; x <= int(it.Box.Right)+slack; x++ {
					c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
					if near(c, templatetest.BackgroundColor, 8) {
						continue
					}
					if left < 0 || x < left {
						left = x
					}
					right = max(right, x)
				}
			}
			if right < 0 {
				t.Fatal("Japanese name left no pixels")
			}
			if float64(left) < it.TextX-slack {
				t.Errorf("ink starts at %d, before the text start %.1f", left, it.TextX)
			}
			// Glyph side bearings leave a small gap; a width measured with
			// a different advance than the one drawn leaves a large one.
			if gap := end - float64(right); gap < -slack || gap > size/4 {
				t.Errorf("ink ends at %d, laid out text ends at %.1f (size %.0f)", right, end, size)
			}
		})
	}
}

func TestCaptureTaintedBackground(t *testing.T) {
	tpl := templatetest.Small()
	s := exportScene(t, tpl, suzuki())
	bg := template.Image{URL: "https://cdn.example.com/bg.png"}

	p, err := render.NewPainter(fonts.Default())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCapture(p, &Loader{Client: newClient(), Origins: []string{"app.example.com"}})
	_, err = c.Rasterize(context.Background(), s, bg)
	if !errors.Is(err, errors.ErrCodeRasterTaint) {
		t.Fatalf("err = %v, want RASTER_TAINT", err)
	}
}

func TestRasterizeRemoteBackground(t *testing.T) {
	png := templatetest.Background(480, 270, templatetest.BackgroundColor)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	tpl := templatetest.Small()
	s := exportScene(t, tpl, suzuki())
	bg := template.Image{URL: srv.URL + "/bg.png"}
	l := &Loader{Client: newClient(), Origins: []string{u.Host}}

	for _, r := range rasterizers(t, l) {
		t.Run(r.Name(), func(t *testing.T) {
			img, err := r.Rasterize(context.Background(), s, bg)
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			if got := img.Bounds().Dx(); got != 480 {
				t.Errorf("width = %d, want 480", got)
			}
		})
	}
}

func TestLoaderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	l := &Loader{Client: newClient()}
	_, err := l.Load(context.Background(), template.Image{URL: srv.URL + "/bg.png"})
	if !errors.Is(err, errors.ErrCodeRateLimited) {
		t.Fatalf("err = %v, want RATE_LIMITED", err)
	}
}

func TestLoaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	l := &Loader{Client: newClient(), Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := l.Load(context.Background(), template.Image{URL: srv.URL + "/slow.png"})
	if !errors.Is(err, errors.ErrCodeRasterTimeout) {
		t.Fatalf("err = %v, want RASTER_TIMEOUT", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}
}

func TestLoaderSources(t *testing.T) {
	png := templatetest.Background(4, 2, color.White)
	tests := []struct {
		name string
		img  template.Image
		code errors.Code
	}{
		{name: "embedded", img: template.Image{Data: png}},
		{name: "data url", img: template.Image{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)}},
		{name: "missing", img: template.Image{}, code: errors.ErrCodeDataLoad},
		{name: "bad data url", img: template.Image{URL: "data:image/png,raw"}, code: errors.ErrCodeDataLoad},
		{name: "ftp", img: template.Image{URL: "ftp://example.com/bg.png"}, code: errors.ErrCodeDataLoad},
		{name: "remote disabled", img: template.Image{URL: "https://example.com/bg.png"}, code: errors.ErrCodeDataLoad},
		{name: "corrupt", img: template.Image{Data: []byte("not an image")}, code: errors.ErrCodeDataLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := (&Loader{}).Load(context.Background(), tt.img)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Fatalf("err = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := img.Bounds().Size(); got != image.Pt(4, 2) {
				t.Errorf("size = %v, want 4x2", got)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	img := imaging.New(8, 4, color.NRGBA{R: 200, A: 255})

	for _, format := range []string{config.FormatPNG, config.FormatJPEG} {
		t.Run(format, func(t *testing.T) {
			data, err := EncodeBytes(img, format)
			if err != nil {
				t.Fatalf("EncodeBytes: %v", err)
			}
			_, got, err := image.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("DecodeConfig: %v", err)
			}
			if got != format {
				t.Errorf("format = %q, want %q", got, format)
			}
		})
	}

	if _, err := EncodeBytes(img, "gif"); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("gif err = %v, want UNSUPPORTED", err)
	}
	if got := Extension(config.FormatJPEG); got != "jpg" {
		t.Errorf("Extension(jpeg) = %q", got)
	}
}

func TestGlowBlurs(t *testing.T) {
	s := exportScene(t, templatetest.Small(), suzuki())
	blurs := glowBlurs(s.Items)
	if len(blurs) == 0 {
		t.Fatal("name fields carry no glow")
	}
	for i := 1; i < len(blurs); i++ {
		if blurs[i] >= blurs[i-1] {
			t.Errorf("blurs not strictly descending: %v", blurs)
		}
	}
}
