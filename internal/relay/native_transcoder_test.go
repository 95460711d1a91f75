package relay

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStereoWAV writes frames of a constant stereo signal at rate.
func writeStereoWAV(t *testing.T, rate, frames, left, right int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, 0, frames*2)
	for range frames {
		data = append(data, left, right)
	}
	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestNativeEngine_DecodesToTargetFormat(t *testing.T) {
	path := writeStereoWAV(t, 32000, 32000, -400, 200)
	engine := NewNativeEngine(quietLogger())

	h, err := engine.Start(context.Background(), LocalSource(path, fastPolicy(1)), DefaultFormat)
	require.NoError(t, err)
	assert.Zero(t, h.PID())
	assert.Equal(t, StateRunning, h.State())

	out, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Len(t, out, 64000, "one second of mono s16le at 32 kHz")
	for i := 0; i < len(out); i += 2 {
		require.Equal(t, int16(-100), int16(binary.LittleEndian.Uint16(out[i:])))
	}

	assert.Equal(t, StateDraining, h.State())
	exit, err := h.Exit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitExhausted, exit.Kind)

	require.NoError(t, h.Terminate())
	assert.Equal(t, StateTerminated, h.State())
}

func TestNativeEngine_TerminateEarly(t *testing.T) {
	path := writeStereoWAV(t, 44100, 44100, 1, 1)
	h, err := NewNativeEngine(quietLogger()).Start(context.Background(), LocalSource(path, fastPolicy(1)), DefaultFormat)
	require.NoError(t, err)

	buf := make([]byte, 3200)
	_, err = io.ReadFull(h, buf)
	require.NoError(t, err)

	require.NoError(t, h.Terminate())
	require.NoError(t, h.Terminate())

	exit, err := h.Exit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitTerminated, exit.Kind)

	_, err = h.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNativeEngine_Rejects(t *testing.T) {
	engine := NewNativeEngine(quietLogger())
	ctx := context.Background()

	_, err := engine.Start(ctx, RemoteSource("http://radio.example/live", fastPolicy(1)), DefaultFormat)
	assert.ErrorIs(t, err, ErrSpawn)

	_, err = engine.Start(ctx, LocalSource("/does/not/exist.wav", fastPolicy(1)), DefaultFormat)
	assert.ErrorIs(t, err, ErrSpawn)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	bogus := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("nope"), 0o600))
	_, err = engine.Start(ctx, LocalSource(bogus, fastPolicy(1)), DefaultFormat)
	assert.ErrorIs(t, err, ErrSpawn)

	stereo := DefaultFormat
	stereo.Channels = 2
	path := writeStereoWAV(t, 8000, 10, 0, 0)
	_, err = engine.Start(ctx, LocalSource(path, fastPolicy(1)), stereo)
	assert.ErrorIs(t, err, ErrSpawn)

	assert.True(t, engine.Supports(LocalSource(path, fastPolicy(1))))
	assert.False(t, engine.Supports(RemoteSource("http://radio.example/live", fastPolicy(1))))
}

func TestNativeEngine_LoopRestarts(t *testing.T) {
	path := writeStereoWAV(t, 16000, 1600, 10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restarts := 0
	loop := NewLoop(LoopConfig{
		Engine: NewNativeEngine(quietLogger()),
		Source: LocalSource(path, fastPolicy(1)),
		Logger: quietLogger(),
		OnRestart: func(ev RestartEvent) {
			assert.Equal(t, RestartExhausted, ev.Reason)
			restarts++
			if restarts == 3 {
				cancel()
			}
		},
	})
	sink := &recordingSink{}
	require.NoError(t, loop.Run(ctx, sink))

	// 0.1 s at 16 kHz upsampled to 32 kHz, three passes.
	perPass := sink.Len() / 3
	assert.InDelta(t, 6400, perPass, 4)
	require.Equal(t, 6400, loop.ChunkSize(), "100 ms default")
	for _, w := range sink.writes {
		assert.LessOrEqual(t, w, loop.ChunkSize())
	}
}
