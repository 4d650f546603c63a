// Package pipeline wires template loading, layout, rendering and export
// into one entry point shared by the CLI and the HTTP server.
//
// # Architecture
//
// A generation run has three stages:
//
//  1. Load: fetch each selected template from a [source.Source]
//  2. Render: resolve and lay out the form data at preview or export scale
//  3. Export: rasterize the export scenes with a bounded worker pool and
//     package the images as one file or one ZIP archive
//
// Loaded templates and rendered images are cached through a [cache.Cache]
// so that repeating a run with the same form is cheap.
//
// # Usage
//
//	runner := pipeline.NewRunner(src, rasterizer, cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{Data: data})
//	if err != nil {
//	    fmt.Println(errors.UserMessage(err))
//	    return
//	}
//	os.WriteFile(result.Download.Name, result.Download.Data, 0o644)
//
// Render a single preview:
//
//	svg, err := runner.PreviewSVG(ctx, "basic", data, 960, 540)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/export"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Cache key modes.
const (
	ModePreview = "preview"
	ModeExport  = "export"
)

// ValidFormats is the set of supported image formats.
var ValidFormats = map[string]bool{
	config.FormatPNG:  true,
	config.FormatJPEG: true,
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid format: %q (must be one of: png, jpeg)", format)
	}
	return nil
}

// Options configures one generation run.
type Options struct {
	Data form.Data `json:"data"`
	// Templates defaults to Data.SelectedTemplates.
	Templates []string `json:"templates,omitempty"`
	Format    string   `json:"format,omitempty"`

	// Concurrency and Delay are passed to [export.Pipeline].
	Concurrency int           `json:"-"`
	Delay       time.Duration `json:"-"`
	// Refresh bypasses cached templates and images.
	Refresh bool `json:"refresh,omitempty"`

	// OnProgress reports settled images, cached ones included.
	OnProgress func(completed, total int) `json:"-"`
	Logger     *log.Logger                `json:"-"`

	validated bool
}

// ValidateAndSetDefaults normalizes the form, checks it and applies
// defaults. Templates, when set, replaces the form's selection. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.Templates) > 0 {
		o.Data.SelectedTemplates = o.Templates
	}
	o.Data = o.Data.Normalize()
	if err := o.Data.Check(); err != nil {
		return err
	}
	o.Templates = o.Data.SelectedTemplates
	if o.Format == "" {
		o.Format = config.FormatPNG
	}
	if err := ValidateFormat(o.Format); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Result contains the outputs of a generation run.
type Result struct {
	// Templates are the loaded templates in request order.
	Templates []*template.Template

	// Export holds the encoded images keyed by template id.
	Export *export.Result

	// Download is the packaged file handed to the user.
	Download *export.Download

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains run timings.
type Stats struct {
	LoadTime   time.Duration
	RenderTime time.Duration
	ExportTime time.Duration
}

// CacheInfo counts cache hits per stage.
type CacheInfo struct {
	TemplateHits int
	ArtifactHits int
}
