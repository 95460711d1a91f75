package audio

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource serves samples from memory, at most maxRead values per call.
type memSource struct {
	rate, channels int
	data           []int16
	pos            int
	maxRead        int
}

func (m *memSource) SampleRate() int { return m.rate }
func (m *memSource) Channels() int   { return m.channels }
func (m *memSource) Close() error    { return nil }

func (m *memSource) Read(dst []int16) (int, error) {
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	if m.maxRead > 0 && len(dst) > m.maxRead {
		dst = dst[:m.maxRead]
	}
	n := copy(dst, m.data[m.pos:])
	m.pos += n
	return n, nil
}

func readAll(t *testing.T, src Source) []int16 {
	t.Helper()
	var out []int16
	buf := make([]int16, 37)
	for {
		n, err := src.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
	}
}

// writeWAV writes interleaved 16-bit samples to a new wav file.
func writeWAV(t *testing.T, path string, rate, channels int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func constantStereo(frames, left, right int) []int {
	data := make([]int, 0, frames*2)
	for range frames {
		data = append(data, left, right)
	}
	return data
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name  string
		frame []int16
		want  int16
	}{
		{"even sum", []int16{100, 200}, 150},
		{"half rounds up", []int16{1, 2}, 2},
		{"negative half rounds away from zero", []int16{-1, -2}, -2},
		{"full scale", []int16{32767, 32767}, 32767},
		{"negative full scale", []int16{-32768, -32768}, -32768},
		{"opposite phase cancels", []int16{1000, -1000}, 0},
		{"four channels", []int16{1, 2, 3, 4}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Downmix(tt.frame))
		})
	}
}

func TestMonoMixer_SplitFrames(t *testing.T) {
	src := &memSource{
		rate:     8000,
		channels: 2,
		data:     []int16{10, 20, 30, 40, 50, 60, 7},
		maxRead:  3, // forces frames to straddle reads
	}

	out := readAll(t, NewMonoMixer(src))
	// Trailing half frame is dropped.
	assert.Equal(t, []int16{15, 35, 55}, out)
}

func TestMonoMixer_MonoPassthrough(t *testing.T) {
	src := &memSource{rate: 8000, channels: 1, data: []int16{1, -2, 3}}
	assert.Equal(t, []int16{1, -2, 3}, readAll(t, NewMonoMixer(src)))
}

func TestResampler_EqualRatePassthrough(t *testing.T) {
	data := []int16{5, -7, 9, 11, -13, 32767, -32768}
	src := &memSource{rate: 32000, channels: 1, data: data, maxRead: 2}

	assert.Equal(t, data, readAll(t, NewResampler(src, 32000)))
}

func TestResampler_Upsample(t *testing.T) {
	src := &memSource{rate: 16000, channels: 1, data: []int16{0, 100, 200}}
	assert.Equal(t, []int16{0, 50, 100, 150, 200}, readAll(t, NewResampler(src, 32000)))
}

func TestResampler_Downsample(t *testing.T) {
	src := &memSource{rate: 64000, channels: 1, data: []int16{0, 1, 2, 3, 4, 5, 6}}
	assert.Equal(t, []int16{0, 2, 4, 6}, readAll(t, NewResampler(src, 32000)))
}

func TestNewPCMStream_OutputFormat(t *testing.T) {
	const (
		inRate      = 44100
		outRate     = 32000
		seconds     = 2
		chunkBytes  = 3200
		left, right = 1000, 3001
	)
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, inRate, 2, constantStereo(inRate*seconds, left, right))

	src, err := Open(path)
	require.NoError(t, err)
	stream := NewPCMStream(src, outRate)
	defer stream.Close()

	out, err := io.ReadAll(stream)
	require.NoError(t, err)

	// duration x 32000 Hz x 2 bytes, within one chunk
	assert.InDelta(t, seconds*outRate*2, len(out), chunkBytes)
	require.Zero(t, len(out)%2)

	want := Downmix([]int16{left, right})
	assert.Equal(t, int16(2001), want)
	for i := 0; i < len(out); i += 2 {
		if got := int16(binary.LittleEndian.Uint16(out[i:])); got != want {
			t.Fatalf("sample %d = %d, want %d", i/2, got, want)
		}
	}
}

func TestPCMReader_OddBuffer(t *testing.T) {
	r := &PCMReader{src: &memSource{rate: 8000, channels: 1, data: []int16{0x0102}}}

	b := make([]byte, 1)
	n, err := r.Read(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x02), b[0])

	n, err = r.Read(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x01), b[0])

	_, err = r.Read(b)
	assert.ErrorIs(t, err, io.EOF)
}

func TestInspect_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.wav")
	writeWAV(t, path, 22050, 2, constantStereo(22050/2, 1, 1))

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "wav", info.Format)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 2, info.SampleWidth)
	assert.Equal(t, int64(22050/2), info.Frames)
	assert.Equal(t, 500*time.Millisecond, info.Duration)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "song.flac"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	bogus := filepath.Join(dir, "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("definitely not riff"), 0o600))
	_, err = Open(bogus)
	assert.ErrorIs(t, err, ErrInvalidFile)

	_, err = Open(filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.WAV"))
	assert.True(t, Supported("b.mp3"))
	assert.True(t, Supported("c.ogg"))
	assert.True(t, Supported("d.aif"))
	assert.False(t, Supported("e.flac"))
}

func TestTo16(t *testing.T) {
	assert.Equal(t, int16(0), to16(128, 8, true))
	assert.Equal(t, int16(-32768), to16(0, 8, true))
	assert.Equal(t, int16(256), to16(1, 8, false))
	assert.Equal(t, int16(0x1234), to16(0x123456, 24, false))
	assert.Equal(t, int16(-1), to16(-1, 32, false))
	assert.Equal(t, int16(-5), to16(-5, 16, false))
}
