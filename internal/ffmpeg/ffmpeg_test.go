package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		version   string
		major     int
		minor     int
		expectErr bool
	}{
		{"release", "ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc 13\n", "6.1.1", 6, 1, false},
		{"git build", "ffmpeg version n7.0-12-gabcdef Copyright\n", "n7.0-12-gabcdef", 7, 0, false},
		{"snapshot", "ffmpeg version N-112233-gdeadbeef\n", "N-112233-gdeadbeef", 0, 0, false},
		{"garbage", "not ffmpeg at all\n", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseVersion(tt.output)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, tt.major, info.MajorVersion)
			assert.Equal(t, tt.minor, info.MinorVersion)
		})
	}
}

func TestBinaryDetector_ConfiguredPath(t *testing.T) {
	fake := writeScript(t, "ffmpeg", `echo "ffmpeg version 6.0 Copyright (c) the FFmpeg developers"`)

	detector := NewBinaryDetector(fake)
	info, err := detector.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake, info.Path)
	assert.Equal(t, 6, info.MajorVersion)

	// Cached result survives the binary disappearing.
	require.NoError(t, os.Remove(fake))
	again, err := detector.Detect(context.Background())
	require.NoError(t, err)
	assert.Same(t, info, again)

	detector.Clear()
	_, err = detector.Detect(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBinaryDetector_EnvVar(t *testing.T) {
	fake := writeScript(t, "ffmpeg-custom", `echo "ffmpeg version 5.1.4"`)
	t.Setenv(BinaryEnvVar, fake)

	path, err := NewBinaryDetector("").Path()
	require.NoError(t, err)
	assert.Equal(t, fake, path)
}

func TestBinaryDetector_BadVersionOutput(t *testing.T) {
	fake := writeScript(t, "ffmpeg", `echo "hello"`)

	_, err := NewBinaryDetector(fake).Detect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse ffmpeg version")
}

func TestFindBinary(t *testing.T) {
	t.Run("env var takes priority over PATH", func(t *testing.T) {
		fake := writeScript(t, "anything", "exit 0")
		t.Setenv("TEST_BINARY_PATH", fake)

		path, err := FindBinary("sh", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, fake, path)
	})

	t.Run("ignores non-executable env path", func(t *testing.T) {
		plain := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))
		t.Setenv("TEST_BINARY_PATH", plain)

		path, err := FindBinary("sh", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.NotEqual(t, plain, path)
	})

	t.Run("ignores directories", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("TEST_BINARY_PATH", dir)

		path, err := FindBinary("sh", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.NotEqual(t, dir, path)
	})

	t.Run("not found", func(t *testing.T) {
		path, err := FindBinary("definitely-nonexistent-binary-12345", "")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, path)
	})
}

func TestPCMCommand_LocalSource(t *testing.T) {
	cmd := PCMCommand("/usr/bin/ffmpeg", PCMRequest{
		Source:     "/srv/music/song.wav",
		LogLevel:   "error",
		Format:     "s16le",
		Codec:      "pcm_s16le",
		SampleRate: 32000,
		Channels:   1,
		Filter:     "pan=mono|c0=0.5*c0+0.5*c1",
	})

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error",
		"-i", "/srv/music/song.wav",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "32000",
		"-ac", "1",
		"-af", "pan=mono|c0=0.5*c0+0.5*c1",
		"-",
	}, cmd.Args)
	assert.NotContains(t, cmd.String(), "-reconnect")
}

func TestPCMCommand_RemoteSource(t *testing.T) {
	cmd := PCMCommand("ffmpeg", PCMRequest{
		Source:            "https://radio.example.com/live",
		Remote:            true,
		UserAgent:         "VLC/3.0.16",
		ReconnectDelayMax: 2,
		Format:            "s16le",
		Codec:             "pcm_s16le",
		SampleRate:        32000,
		Channels:          1,
	})

	s := cmd.String()
	assert.Contains(t, s, "-user_agent VLC/3.0.16")
	assert.Contains(t, s, "-reconnect 1 -reconnect_at_eof 1 -reconnect_streamed 1 -reconnect_delay_max 2")
	// Input flags precede -i.
	assert.Less(t, strings.Index(s, "-reconnect"), strings.Index(s, "-i https://"))
	assert.NotContains(t, s, "-af")
}

func TestCommandBuilder_HideBanner(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").LogLevel("warning").HideBanner().Input("in").Output("out").Build()
	assert.Equal(t, []string{"-loglevel", "warning", "-hide_banner", "-i", "in", "out"}, cmd.Args)
}

func TestStderrRing(t *testing.T) {
	ring := NewStderrRing(3)

	_, _ = ring.Write([]byte("one\ntwo\nthr"))
	assert.Equal(t, []string{"one", "two", "thr"}, ring.Lines())

	_, _ = ring.Write([]byte("ee\r\nfour\n\nfive\n"))
	assert.Equal(t, []string{"three", "four", "five"}, ring.Lines())
	assert.Equal(t, "four\nfive", ring.Tail(2))
}

func TestProcessExists(t *testing.T) {
	ctx := context.Background()
	assert.True(t, ProcessExists(ctx, os.Getpid()))
	assert.False(t, ProcessExists(ctx, 0))

	cmd := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, cmd.Run())
	assert.False(t, ProcessExists(ctx, cmd.ProcessState.Pid()))
}

func TestInspectProcess(t *testing.T) {
	stats, err := InspectProcess(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Positive(t, stats.MemoryRSSByte)
}
