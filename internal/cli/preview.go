package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// previewOpts holds the flags of the preview command.
type previewOpts struct {
	formFile string
	output   string
	width    float64
	height   float64
}

// previewCommand creates the preview command.
func (c *CLI) previewCommand() *cobra.Command {
	var opts previewOpts

	cmd := &cobra.Command{
		Use:   "preview <template>",
		Short: "Write an SVG preview of one template",
		Long: `Lay out one template with the saved form and write it as SVG.

The template is fitted inside a --width × --height container the way the
form page shows it; set both to 0 for the native size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPreview(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.formFile, "form", "", "read the form from a JSON file instead of the saved store")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default <template>.svg)")
	cmd.Flags().Float64Var(&opts.width, "width", 960, "container width")
	cmd.Flags().Float64Var(&opts.height, "height", 540, "container height")

	return cmd
}

func (c *CLI) runPreview(ctx context.Context, id string, opts previewOpts) error {
	if err := errors.ValidateTemplateID(id); err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	data, err := c.readForm(ctx, opts.formFile)
	if err != nil {
		return err
	}
	runner, err := c.newRunner(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer runner.Close()

	svg, err := runner.PreviewSVG(ctx, id, data, opts.width, opts.height)
	if err != nil {
		return err
	}
	path := firstNonEmpty(opts.output, id+".svg")
	if err := os.WriteFile(path, svg, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	printSuccess("Preview written")
	printFile(path)
	return nil
}
