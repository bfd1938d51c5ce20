package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blustick/internal/bootstrap"
	"blustick/internal/bootstrap/logging"
	"blustick/internal/errs"
	"blustick/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the detection ingestion and query HTTP server",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, server *httpapi.Server) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		// Schema must exist before the first batch arrives; AutoMigrate is
		// idempotent so running it on every start is safe.
		if err := app.InitSchema(ctx); err != nil {
			logging.Error(ctx, "initialize schema failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "initialize schema")
		}

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := server.Run(runCtx); err != nil {
			return errs.Wrap(err, "serve detections api")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
