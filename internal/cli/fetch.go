package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/source"
)

// fetchCommand creates the fetch command.
func (c *CLI) fetchCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "fetch [template...]",
		Short: "Download templates from Figma into a local bundle",
		Long: `Download backgrounds and layouts from the design file and write them
as a local bundle (index.json plus one image and one layout per template).

Needs a Figma access token in the environment variable named by
source.token_env (FIGMA_ACCESS_TOKEN by default). Without arguments every
catalog template is fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFetch(cmd.Context(), args, dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "bundle directory (default source.bundle)")

	return cmd
}

func (c *CLI) runFetch(ctx context.Context, ids []string, dir string) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Source.Token == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "fetch needs a Figma token in %s", cfg.Source.TokenEnv)
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = catalog.IDs()
	}
	for _, id := range ids {
		if err := errors.ValidateTemplateID(id); err != nil {
			return err
		}
	}
	dir = firstNonEmpty(dir, cfg.Source.Bundle)

	store, err := c.newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	figma, err := source.NewFigma(source.FigmaOptions{
		Token:   cfg.Source.Token,
		Catalog: catalog,
		Cache:   store,
		TTL:     cfg.Cache.TTL,
		Keyer:   cacheKeyer(cfg),
		BaseURL: cfg.Source.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Fetching %d templates...", len(ids)))
	spinner.Start()
	set, err := figma.Fetch(ctx, ids)
	if err != nil {
		spinner.StopWithError("Fetch failed")
		return err
	}
	if err := source.WriteBundle(dir, set); err != nil {
		spinner.StopWithError("Could not write the bundle")
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Fetched %d templates", len(set)))
	prog.done(fmt.Sprintf("Wrote bundle with %d templates", len(set)))

	for _, f := range set {
		printDetail("%s  %s", f.Entry.ID, f.Entry.DisplayName)
	}
	printFile(dir)
	return nil
}
