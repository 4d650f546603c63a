package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/internal/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve previews and exports over HTTP",
		Long: `Start an HTTP server for the form page.

  GET  /api/templates        list templates
  POST /api/validate         check a form
  POST /api/preview/{id}     SVG preview (?width=&height=)
  POST /api/export           PNG or ZIP download (?format=)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer runner.Close()

			srv := server.New(runner, server.Options{
				Logger:          loggerFromContext(ctx),
				Format:          cfg.Export.Format,
				Concurrency:     cfg.Export.Concurrency,
				Delay:           cfg.Export.Delay,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			})
			return srv.ListenAndServe(ctx, firstNonEmpty(addr, cfg.Server.Addr))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")

	return cmd
}
