package ffmpeg

import (
	"os/exec"
	"strconv"
	"strings"
)

// Command is a fully built ffmpeg invocation.
type Command struct {
	Binary string
	Args   []string
}

// String returns the command line, for logging.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Exec returns an unstarted exec.Cmd for the command. The caller owns the
// process lifecycle; no context is attached so termination stays graceful.
func (c *Command) Exec() *exec.Cmd {
	return exec.Command(c.Binary, c.Args...) //nolint:gosec // args are built, not user shell input
}

// CommandBuilder builds ffmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	logLevel   string
	globalArgs []string
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	if level != "" {
		b.logLevel = level
	}
	return b
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// InputArgs adds arguments placed before -i.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// UserAgent sets the HTTP user agent for network inputs.
func (b *CommandBuilder) UserAgent(ua string) *CommandBuilder {
	if ua == "" {
		return b
	}
	return b.InputArgs("-user_agent", ua)
}

// Reconnect enables ffmpeg's HTTP reconnection for live network inputs.
func (b *CommandBuilder) Reconnect(delayMax int) *CommandBuilder {
	return b.InputArgs(
		"-reconnect", "1",
		"-reconnect_at_eof", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", strconv.Itoa(delayMax),
	)
}

// Input sets the input file or URL.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// OutputArgs adds arguments placed after the input.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// OutputFormat sets the muxer (-f).
func (b *CommandBuilder) OutputFormat(format string) *CommandBuilder {
	return b.OutputArgs("-f", format)
}

// AudioCodec sets the audio encoder.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	return b.OutputArgs("-acodec", codec)
}

// SampleRate sets the output sample rate.
func (b *CommandBuilder) SampleRate(hz int) *CommandBuilder {
	return b.OutputArgs("-ar", strconv.Itoa(hz))
}

// AudioChannels sets the output channel count.
func (b *CommandBuilder) AudioChannels(n int) *CommandBuilder {
	return b.OutputArgs("-ac", strconv.Itoa(n))
}

// AudioFilter adds an audio filter graph.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	if filter == "" {
		return b
	}
	return b.OutputArgs("-af", filter)
}

// Output sets the output target. Use "-" or "pipe:1" for stdout.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the final command.
func (b *CommandBuilder) Build() *Command {
	args := make([]string, 0, 4+len(b.globalArgs)+len(b.inputArgs)+len(b.outputArgs))
	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	if b.input != "" {
		args = append(args, "-i", b.input)
	}
	args = append(args, b.outputArgs...)
	if b.output != "" {
		args = append(args, b.output)
	}

	return &Command{Binary: b.binary, Args: args}
}

// PCMRequest describes a source to transcode into raw PCM on stdout.
type PCMRequest struct {
	Source            string
	Remote            bool
	UserAgent         string
	ReconnectDelayMax int
	LogLevel          string

	Format     string // e.g. s16le
	Codec      string // e.g. pcm_s16le
	SampleRate int
	Channels   int
	Filter     string
}

// PCMCommand builds the command that transcodes req.Source to raw PCM on
// stdout. Network sources get a user agent and reconnect flags.
func PCMCommand(binary string, req PCMRequest) *Command {
	b := NewCommandBuilder(binary).LogLevel(req.LogLevel)
	if req.Remote {
		b.UserAgent(req.UserAgent).Reconnect(req.ReconnectDelayMax)
	}
	return b.Input(req.Source).
		OutputFormat(req.Format).
		AudioCodec(req.Codec).
		SampleRate(req.SampleRate).
		AudioChannels(req.Channels).
		AudioFilter(req.Filter).
		Output("-").
		Build()
}
