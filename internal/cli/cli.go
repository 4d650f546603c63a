// Package cli implements the backdrop command-line interface.
//
// # Commands
//
//   - form: Fill in names, affiliation and the template selection
//   - generate: Export the selected backgrounds as one PNG or a ZIP
//   - preview: Write an SVG preview of one template
//   - templates: List the available templates
//   - fetch: Download templates from Figma into a local bundle
//   - serve: Serve previews and exports over HTTP
//   - cache: Manage the template and image cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/pkg/buildinfo"
	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/export"
	"github.com/matzehuels/backdrop/pkg/fonts"
	"github.com/matzehuels/backdrop/pkg/httputil"
	"github.com/matzehuels/backdrop/pkg/pipeline"
	"github.com/matzehuels/backdrop/pkg/raster"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/resolve"
	"github.com/matzehuels/backdrop/pkg/source"
	"github.com/matzehuels/backdrop/pkg/template"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	// Prompter asks interactive questions; nil uses the terminal.
	Prompter Prompter

	configPath string
	formDir    string // form store directory; empty uses the config dir
	noCache    bool
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "backdrop fills meeting background templates with your name",
		Long: `backdrop renders personalized video-meeting backgrounds: your name, team
and role laid out on designer templates, exported as PNG files or one ZIP.`,
		Version:       buildinfo.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	// Defaults come from c so that a preset path survives rebuilding the tree.
	root.PersistentFlags().StringVar(&c.configPath, "config", c.configPath, "config file (default ~/.config/backdrop/config.toml)")
	root.PersistentFlags().BoolVar(&c.noCache, "no-cache", c.noCache, "disable the template and image cache")

	// Register all subcommands
	root.AddCommand(c.generateCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.templatesCommand())
	root.AddCommand(c.formCommand())
	root.AddCommand(c.fetchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// ErrorMessage returns the text shown to the user for err.
func ErrorMessage(err error) string {
	return export.UserMessage(err)
}

// =============================================================================
// Configuration
// =============================================================================

// loadConfig loads the configuration once per process.
func (c *CLI) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		c.Logger.Debug("loaded config", "path", cfg.Path)
	}
	c.cfg = cfg
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner assembles a pipeline runner from the configuration. rasterizer
// overrides export.rasterizer when set.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, rasterizer string) (*pipeline.Runner, error) {
	store, err := c.newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	src, err := c.newSource(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	set, err := fontSet(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts, err := c.renderOptions(cfg, set)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	keyer := cacheKeyer(cfg)
	loader := &raster.Loader{
		Client:  httputil.NewClient(store, "background", cfg.Cache.TTL, nil).WithKeyer(keyer),
		Timeout: cfg.Export.Timeout,
	}
	if rasterizer == "" {
		rasterizer = cfg.Export.Rasterizer
	}
	painter, err := render.NewPainter(set)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rz, err := newRasterizer(rasterizer, set, painter, loader)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	r := pipeline.NewRunner(src, rz, store, keyer, c.Logger)
	r.Render = opts
	r.Painter = painter
	r.Loader = loader
	r.TTL = cfg.Cache.TTL
	c.Logger.Debug("runner ready", "source", src.Name(), "rasterizer", rz.Name(), "cache", cfg.Cache.Backend)
	return r, nil
}

func newRasterizer(name string, set fonts.Set, p *render.Painter, l *raster.Loader) (raster.Rasterizer, error) {
	switch name {
	case config.RasterizerCapture:
		return raster.NewCapture(p, l), nil
	case config.RasterizerComposite:
		return raster.NewComposite(set, l)
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown rasterizer %q (want capture or composite)", name)
	}
}

// newCache creates the configured cache backend. --no-cache wins over the
// config file.
func (c *CLI) newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if c.noCache {
		return cache.NewNullCache(), nil
	}
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), nil
	case config.CacheRedis:
		return cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		c.Logger.Warn("cache disabled", "error", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheKeyer scopes cache keys when several deployments share a backend.
func cacheKeyer(cfg *config.Config) cache.Keyer {
	if cfg.Cache.Prefix == "" {
		return nil
	}
	return cache.NewScopedKeyer(nil, cfg.Cache.Prefix)
}

// newSource prefers a local bundle and falls back to the Figma API when a
// token is configured.
func (c *CLI) newSource(cfg *config.Config, store cache.Cache) (source.Source, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	if dir := cfg.Source.Bundle; dir != "" {
		if _, err := os.Stat(filepath.Join(dir, source.IndexFile)); err == nil {
			return source.NewBundle(dir, catalog), nil
		}
	}
	if cfg.Source.Token != "" {
		return source.NewFigma(source.FigmaOptions{
			Token:   cfg.Source.Token,
			Catalog: catalog,
			Cache:   store,
			TTL:     cfg.Cache.TTL,
			Keyer:   cacheKeyer(cfg),
			BaseURL: cfg.Source.BaseURL,
			Logger:  c.Logger,
		})
	}
	return nil, errors.New(errors.ErrCodeDataLoad,
		"no templates found in %q; run `backdrop fetch` or set %s", cfg.Source.Bundle, cfg.Source.TokenEnv)
}

func loadCatalog(cfg *config.Config) (*template.Catalog, error) {
	catalog := template.DefaultCatalog()
	if cfg.Source.Catalog != "" {
		var err error
		if catalog, err = template.LoadCatalog(cfg.Source.Catalog); err != nil {
			return nil, err
		}
	}
	if cfg.Source.FileKey != "" {
		catalog.FileKey = cfg.Source.FileKey
	}
	return catalog, nil
}

func fontSet(cfg *config.Config) (fonts.Set, error) {
	if cfg.Fonts.Regular == "" && cfg.Fonts.Bold == "" {
		return fonts.Default(), nil
	}
	return fonts.Load(cfg.Fonts.Regular, cfg.Fonts.Bold)
}

func (c *CLI) renderOptions(cfg *config.Config, set fonts.Set) (render.Options, error) {
	opts := render.Options{Resolve: resolve.Options{Logger: c.Logger}}
	if cfg.Rules.Path != "" {
		rules, err := resolve.LoadRules(cfg.Rules.Path)
		if err != nil {
			return opts, err
		}
		opts.Resolve.Rules = rules
	}
	if cfg.Fonts.Regular != "" || cfg.Fonts.Bold != "" {
		m, err := fonts.NewMeasurer(set)
		if err != nil {
			return opts, err
		}
		opts.Measurer = m
	}
	return opts, nil
}
