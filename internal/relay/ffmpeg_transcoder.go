package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
)

// FFmpegEngineConfig configures the ffmpeg-backed engine.
type FFmpegEngineConfig struct {
	Binary            *ffmpeg.BinaryDetector
	UserAgent         string
	ReconnectDelayMax int
	LogLevel          string
	GracePeriod       time.Duration
	Logger            *slog.Logger
}

// FFmpegEngine spawns one ffmpeg process per handle.
type FFmpegEngine struct {
	config FFmpegEngineConfig
}

// NewFFmpegEngine creates an engine running the detected ffmpeg binary.
func NewFFmpegEngine(config FFmpegEngineConfig) *FFmpegEngine {
	if config.Binary == nil {
		config.Binary = ffmpeg.NewBinaryDetector("")
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Logger = config.Logger.With(slog.String("engine", "ffmpeg"))
	return &FFmpegEngine{config: config}
}

// Name implements Engine.
func (e *FFmpegEngine) Name() string {
	return "ffmpeg"
}

// Command returns the ffmpeg invocation for src.
func (e *FFmpegEngine) Command(src SourceDescriptor, format TargetFormat) (*ffmpeg.Command, error) {
	path, err := e.config.Binary.Path()
	if err != nil {
		return nil, err
	}

	return ffmpeg.PCMCommand(path, ffmpeg.PCMRequest{
		Source:            src.Location,
		Remote:            src.IsRemote(),
		UserAgent:         e.config.UserAgent,
		ReconnectDelayMax: e.config.ReconnectDelayMax,
		LogLevel:          e.config.LogLevel,
		Format:            format.Encoding,
		Codec:             format.Codec,
		SampleRate:        format.SampleRate,
		Channels:          format.Channels,
		Filter:            format.Downmix,
	}), nil
}

// Start implements Engine.
func (e *FFmpegEngine) Start(ctx context.Context, src SourceDescriptor, format TargetFormat) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if !src.IsRemote() {
		if err := statLocal(src.Location); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
		}
	}

	command, err := e.Command(src, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	h, err := startProcess(command.Exec(), e.config.GracePeriod, e.config.Logger)
	if err != nil {
		return nil, err
	}

	e.config.Logger.Debug("transcoder started",
		slog.Int("pid", h.PID()),
		slog.String("source", src.Name),
		slog.String("command", command.String()))

	return h, nil
}
