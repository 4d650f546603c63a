package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/export"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/pipeline"
)

// generateOpts holds the flags of the generate command.
type generateOpts struct {
	formFile    string
	output      string
	format      string
	rasterizer  string
	concurrency int
	yes         bool
	refresh     bool
	noProgress  bool
}

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	var opts generateOpts

	cmd := &cobra.Command{
		Use:   "generate [template...]",
		Short: "Export backgrounds for the saved form",
		Long: `Export one background per selected template.

The form comes from the saved store (see "backdrop form") or from --form.
Template arguments replace the saved selection. One template is written as
an image, several as one ZIP named after you.`,
		Example: `  backdrop generate
  backdrop generate basic oudan -o ~/Desktop
  backdrop generate --form me.json --format jpeg --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGenerate(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.formFile, "form", "", "read the form from a JSON file instead of the saved store")
	cmd.Flags().StringVarP(&opts.output, "output", "o", ".", "output directory")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "image format: png, jpeg (default from config)")
	cmd.Flags().StringVar(&opts.rasterizer, "rasterizer", "", "rasterizer: capture, composite (default from config)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "images rendered at once (default from memory pressure)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation for large selections")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore cached templates and images")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "log progress instead of drawing a progress bar")

	return cmd
}

func (c *CLI) runGenerate(ctx context.Context, args []string, opts generateOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	data, err := c.readForm(ctx, opts.formFile)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		data.SelectedTemplates = args
	}
	data = data.Normalize()

	if fe := data.Validate(); fe != nil {
		printError("The form is incomplete")
		printFieldErrors(fe)
		printNextStep("Fill it in with", "backdrop form")
		return errors.Wrap(errors.ErrCodeInvalidInput, fe, "form has %d problem(s)", len(fe))
	}

	n := len(data.SelectedTemplates)
	if data.NeedsConfirm() && !opts.yes {
		ok, err := c.prompter().Confirm(ctx, fmt.Sprintf("Export %d backgrounds?", n), true)
		if err != nil {
			return err
		}
		if !ok {
			printInfo("Nothing exported")
			return nil
		}
	}

	runner, err := c.newRunner(ctx, cfg, opts.rasterizer)
	if err != nil {
		return err
	}
	defer runner.Close()

	popts := pipeline.Options{
		Data:        data,
		Format:      firstNonEmpty(opts.format, cfg.Export.Format),
		Concurrency: cfg.Export.Concurrency,
		Delay:       cfg.Export.Delay,
		Refresh:     opts.refresh,
		Logger:      logger,
	}
	if opts.concurrency > 0 {
		popts.Concurrency = opts.concurrency
	}

	var result *pipeline.Result
	execute := func(ctx context.Context, onProgress progressFunc) error {
		popts.OnProgress = onProgress
		res, err := runner.Execute(ctx, popts)
		result = res
		return err
	}

	prog := newProgress(logger)
	if opts.noProgress || !isTerminal(os.Stderr) {
		err = execute(ctx, func(done, total int) {
			logger.Debug("progress", "done", done, "total", total)
		})
	} else {
		err = runWithProgress(ctx, os.Stderr, fmt.Sprintf("Rendering %d backgrounds", n), n, execute)
	}
	if err != nil {
		printExportFailure(err)
		return err
	}
	prog.done(fmt.Sprintf("Exported %d images", len(result.Export.Outputs)))

	path, err := writeDownload(opts.output, result.Download)
	if err != nil {
		return err
	}
	printSuccess("Saved %s", result.Download.Name)
	printFile(path)
	printImageStats(len(result.Export.Outputs), result.CacheInfo.ArtifactHits)
	return nil
}

// writeDownload writes dl into dir and returns the file path.
func writeDownload(dir string, dl *export.Download) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "create output directory")
	}
	path := filepath.Join(dir, dl.Name)
	if err := os.WriteFile(path, dl.Data, 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	return path, nil
}

// printExportFailure lists each failed template of a fail-closed run.
func printExportFailure(err error) {
	var pf *export.PartialFailureError
	if !stderrors.As(err, &pf) {
		return
	}
	printError("No download was produced: %d of %d images failed", pf.Failed, pf.Total)
	for _, r := range pf.Results {
		if r.Status == export.StatusError {
			printDetail("%s: %s", r.Name, ErrorMessage(r.Err))
		}
	}
}

func printFieldErrors(fe form.FieldErrors) {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		printFieldError(f, fe[f])
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
