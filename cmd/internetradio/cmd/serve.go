package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ABHIRAMSHIBU/internetradio/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the internetradio HTTP server.

The server provides:
- /stream: raw PCM (s16le, 32 kHz, mono) for the selected source
- /load/{filename}: switch the source for new listeners
- / and /status: current source and listener count
- Session administration, health checks and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("source", "", "Initial source: a file in the media directory or an http(s) URL")
	serveCmd.Flags().String("media-dir", ".", "Directory that /load may select files from")
	serveCmd.Flags().String("engine", "ffmpeg", "Transcoder engine (ffmpeg, native, auto)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("source.initial", serveCmd.Flags().Lookup("source"))
	mustBindPFlag("source.media_dir", serveCmd.Flags().Lookup("media-dir"))
	mustBindPFlag("relay.engine", serveCmd.Flags().Lookup("engine"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("starting internetradio server",
		slog.String("version", version.Short()),
		slog.String("address", a.server.Addr()),
		slog.String("engine", a.manager.EngineName()),
		slog.String("media_dir", cfg.Source.MediaDir),
		slog.Bool("database", a.db != nil),
		slog.Bool("metrics", a.metrics != nil))

	if err := a.run(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	logger.Info("server stopped", slog.Bool("signalled", ctx.Err() != nil))
	return nil
}
