package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/export"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/observability"
	"github.com/matzehuels/backdrop/pkg/raster"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/source"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use it to avoid duplicating caching logic.
//
// The Runner keeps no per-run state. Multiple goroutines can safely use
// the same Runner with different options.
type Runner struct {
	Source     source.Source
	Rasterizer raster.Rasterizer
	Cache      cache.Cache
	Keyer      cache.Keyer
	Logger     *log.Logger

	// Render configures layout for previews and exports.
	Render render.Options
	// Painter draws SVG previews; nil uses the default fonts.
	Painter *render.Painter
	// Loader decodes preview backgrounds; nil decodes embedded images only.
	Loader *raster.Loader
	// TTL applies to every cache entry. Zero keeps entries forever.
	TTL time.Duration
}

// NewRunner creates a runner.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(src source.Source, rz raster.Rasterizer, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Source:     src,
		Rasterizer: rz,
		Cache:      c,
		Keyer:      keyer,
		Logger:     logger,
	}
}

// Templates lists the templates the source offers.
func (r *Runner) Templates(ctx context.Context) ([]template.Entry, error) {
	return r.Source.List(ctx)
}

// Execute runs the complete load → render → export pipeline with caching.
// Any failed image fails the run; no partial download is produced.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Rasterizer == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "no rasterizer configured")
	}
	logger := opts.Logger
	result := &Result{}

	// Stage 1: Load
	loadStart := time.Now()
	for _, id := range opts.Templates {
		tpl, hit, err := r.LoadWithCacheInfo(ctx, id, opts.Refresh)
		if err != nil {
			return nil, err
		}
		if hit {
			result.CacheInfo.TemplateHits++
		}
		result.Templates = append(result.Templates, tpl)
	}
	result.Stats.LoadTime = time.Since(loadStart)

	logger.Info("loaded templates",
		"count", len(result.Templates),
		"cached", result.CacheInfo.TemplateHits,
		"duration", result.Stats.LoadTime)

	// Stage 2: Render
	renderStart := time.Now()
	keys := make(map[string]string, len(result.Templates))
	cached := make(map[string][]byte)
	var jobs []export.Job
	fh := formHash(opts.Data)
	for _, tpl := range result.Templates {
		key := r.Keyer.ArtifactKey(tpl.ID, r.artifactKeyOpts(tpl, fh, opts.Format))
		keys[tpl.ID] = key
		if !opts.Refresh {
			if data, err := r.cached(ctx, key, "artifact"); err == nil {
				cached[tpl.ID] = data
				continue
			}
		}
		s, err := render.Export(tpl, opts.Data, r.Render)
		if err != nil {
			return nil, err
		}
		if s.BackgroundErr != nil {
			logger.Warn("background header unreadable", "template", tpl.ID, "error", s.BackgroundErr)
		}
		jobs = append(jobs, export.Job{TemplateID: tpl.ID, Scene: s, Background: tpl.Background})
	}
	result.CacheInfo.ArtifactHits = len(cached)
	result.Stats.RenderTime = time.Since(renderStart)

	// Stage 3: Export
	exportStart := time.Now()
	res, err := r.export(ctx, opts, jobs, len(cached))
	if err != nil {
		return nil, err
	}
	for id, data := range res.Outputs {
		r.store(ctx, keys[id], "artifact", data)
	}
	for id, data := range cached {
		res.Outputs[id] = data
		res.Tasks = append(res.Tasks, export.TaskResult{Name: id, Status: export.StatusSuccess})
	}
	sort.Slice(res.Tasks, func(i, j int) bool { return res.Tasks[i].Name < res.Tasks[j].Name })
	result.Export = res

	dl, err := export.Package(opts.Data, res)
	if err != nil {
		return nil, err
	}
	result.Download = dl
	result.Stats.ExportTime = time.Since(exportStart)

	logger.Info("exported images",
		"run", res.RunID,
		"images", len(res.Outputs),
		"cached", result.CacheInfo.ArtifactHits,
		"file", dl.Name,
		"duration", result.Stats.ExportTime)

	return result, nil
}

func (r *Runner) export(ctx context.Context, opts Options, jobs []export.Job, cached int) (*export.Result, error) {
	total := len(jobs) + cached
	if len(jobs) == 0 {
		if opts.OnProgress != nil {
			opts.OnProgress(total, total)
		}
		return &export.Result{RunID: uuid.NewString(), Format: opts.Format, Outputs: make(map[string][]byte)}, nil
	}
	p := &export.Pipeline{
		Rasterizer:  observed{r.Rasterizer},
		Concurrency: opts.Concurrency,
		Delay:       opts.Delay,
		Format:      opts.Format,
		Logger:      opts.Logger,
	}
	if opts.OnProgress != nil {
		p.OnProgress = func(completed, _ int) {
			opts.OnProgress(cached+completed, total)
		}
	}
	return p.Run(ctx, jobs)
}

func (r *Runner) artifactKeyOpts(tpl *template.Template, fh, format string) cache.ArtifactKeyOpts {
	o := cache.ArtifactKeyOpts{
		FormHash:     fh,
		TemplateHash: templateHash(tpl),
		Mode:         ModeExport,
		Rasterizer:   r.Rasterizer.Name(),
		Format:       format,
	}
	if rules := r.Render.Resolve.Rules; rules != nil {
		o.RulesHash = cache.HashJSON(rules)
	}
	return o
}

// LoadWithCacheInfo loads a template with caching and returns cache hit info.
func (r *Runner) LoadWithCacheInfo(ctx context.Context, id string, refresh bool) (*template.Template, bool, error) {
	if err := errors.ValidateTemplateID(id); err != nil {
		return nil, false, err
	}
	hooks := observability.Pipeline()
	hooks.OnLoadStart(ctx, id)
	start := time.Now()
	tpl, hit, err := r.load(ctx, id, refresh)
	hooks.OnLoadComplete(ctx, id, time.Since(start), err)
	return tpl, hit, err
}

// Load is a convenience wrapper that calls LoadWithCacheInfo and discards the cache hit info.
func (r *Runner) Load(ctx context.Context, id string) (*template.Template, error) {
	tpl, _, err := r.LoadWithCacheInfo(ctx, id, false)
	return tpl, err
}

func (r *Runner) load(ctx context.Context, id string, refresh bool) (*template.Template, bool, error) {
	key := r.Keyer.TemplateKey(r.Source.Name(), id)
	if !refresh {
		if data, err := r.cached(ctx, key, "template"); err == nil {
			tpl, err := decodeTemplate(data)
			if err == nil {
				return tpl, true, nil
			}
			// If decoding fails, fall through to reload
			r.Logger.Debug("discarding cached template", "template", id, "error", err)
		}
	}

	tpl, err := r.Source.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if data, err := encodeTemplate(tpl); err == nil {
		r.store(ctx, key, "template", data)
	}
	return tpl, false, nil
}

// Preview lays out one template inside a containerW×containerH box.
func (r *Runner) Preview(ctx context.Context, id string, data form.Data, containerW, containerH float64) (*render.Scene, error) {
	tpl, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return render.Preview(tpl, data.Normalize(), containerW, containerH, r.Render)
}

// PreviewSVG renders [Runner.Preview] as SVG. A background that cannot be
// loaded is left out and logged.
func (r *Runner) PreviewSVG(ctx context.Context, id string, data form.Data, containerW, containerH float64) ([]byte, error) {
	tpl, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := render.Preview(tpl, data.Normalize(), containerW, containerH, r.Render)
	if err != nil {
		return nil, err
	}
	bg := r.background(ctx, tpl)

	var buf bytes.Buffer
	if r.Painter != nil {
		err = r.Painter.WriteSVG(&buf, s, bg)
	} else {
		err = render.WriteSVG(&buf, s, bg)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Runner) background(ctx context.Context, tpl *template.Template) image.Image {
	var (
		img image.Image
		err error
	)
	if r.Loader != nil {
		img, err = r.Loader.Load(ctx, tpl.Background)
	} else {
		img, err = render.DecodeBackground(tpl.Background)
	}
	if err != nil {
		r.Logger.Warn("preview without background", "template", tpl.ID, "error", err)
		return nil
	}
	return img
}

// cached returns cache.ErrCacheMiss for misses and unreadable entries.
func (r *Runner) cached(ctx context.Context, key, kind string) ([]byte, error) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Debug("cache read failed", "key", key, "error", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, kind)
		return nil, cache.ErrCacheMiss
	}
	observability.Cache().OnCacheHit(ctx, kind)
	return data, nil
}

func (r *Runner) store(ctx context.Context, key, kind string, data []byte) {
	if err := r.Cache.Set(ctx, key, data, r.TTL); err != nil {
		r.Logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, kind, len(data))
}

// Close releases the cache and, when it holds any, the rasterizer.
func (r *Runner) Close() error {
	var errs []error
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	if c, ok := r.Rasterizer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return stderrors.Join(errs...)
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// observed reports rasterizations to the pipeline hooks.
type observed struct {
	raster.Rasterizer
}

func (o observed) Rasterize(ctx context.Context, s *render.Scene, bg template.Image) (*image.RGBA, error) {
	hooks := observability.Pipeline()
	name := o.Name()
	hooks.OnRasterStart(ctx, s.TemplateID, name)
	start := time.Now()
	img, err := o.Rasterizer.Rasterize(ctx, s, bg)
	hooks.OnRasterComplete(ctx, s.TemplateID, name, time.Since(start), err)
	return img, err
}
