package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ABHIRAMSHIBU/internetradio/internal/catalog"
	"github.com/ABHIRAMSHIBU/internetradio/internal/config"
	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
)

const checkTimeout = 30 * time.Second

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check ffmpeg and the configured source",
	Long: `Detect the ffmpeg binary and verify that the initial source can be opened.

Exits non-zero when the selected engine cannot run or the source is unusable.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("source", "", "Source to check instead of source.initial")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if spec, _ := cmd.Flags().GetString("source"); spec != "" {
		cfg.Source.Initial = spec
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	if err := checkFFmpeg(ctx, out, cfg, ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath)); err != nil {
		return err
	}
	return checkSource(ctx, out, cfg, slog.Default())
}

// checkFFmpeg reports the detected binary. A missing binary only fails when
// the ffmpeg engine is required.
func checkFFmpeg(ctx context.Context, out io.Writer, cfg *config.Config, detector *ffmpeg.BinaryDetector) error {
	info, err := detector.Detect(ctx)
	if err != nil {
		fmt.Fprintf(out, "ffmpeg:  not available (%v)\n", err)
		if cfg.Relay.Engine == config.EngineFFmpeg {
			return fmt.Errorf("relay.engine is ffmpeg: %w", err)
		}
		fmt.Fprintln(out, "engine:  native")
		return nil
	}

	fmt.Fprintf(out, "ffmpeg:  %s (%s)\n", info.Path, info.Version)
	engine := cfg.Relay.Engine
	if engine == config.EngineAuto {
		engine = config.EngineFFmpeg
	}
	fmt.Fprintf(out, "engine:  %s\n", engine)
	return nil
}

func checkSource(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	cat, err := catalog.New(catalog.Config{
		MediaDir:   cfg.Source.MediaDir,
		Extensions: cfg.Source.Extensions,
		Policy:     reconnectPolicy(cfg.Relay.Retry),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("opening media directory: %w", err)
	}
	entries := cat.List()
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	fmt.Fprintf(out, "media:   %s (%d files, %s)\n", cat.MediaDir(), len(entries), humanize.IBytes(uint64(total)))

	if cfg.Source.Initial == "" {
		fmt.Fprintln(out, "source:  none configured")
		return nil
	}

	sel, err := cat.Initial(ctx, cfg.Source.Initial)
	if err != nil {
		return fmt.Errorf("source %q: %w", cfg.Source.Initial, err)
	}

	resolver := relay.NewResolver(relay.ResolverConfig{
		UserAgent:      cfg.FFmpeg.UserAgent,
		ProbeTimeout:   cfg.Source.ProbeTimeout,
		CircuitBreaker: relay.DefaultCircuitBreakerConfig(),
		Logger:         logger,
	})
	if err := resolver.Resolve(ctx, sel.Source); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("source %q: timed out", sel.Identifier)
		}
		return fmt.Errorf("source %q: %w", sel.Identifier, err)
	}

	fmt.Fprintf(out, "source:  %s (%s)\n", sel.Identifier, sel.Kind)
	if sel.Info != nil {
		fmt.Fprintf(out, "format:  %d Hz, %d channels, %.1fs\n",
			sel.Info.SampleRate, sel.Info.Channels, sel.Info.Duration.Seconds())
	}
	return nil
}
