// Package audio decodes local audio files into 16-bit PCM and converts them
// to the relay's output format in pure Go.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrUnsupportedFormat is returned for file types without a decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidFile is returned when a file does not parse as its format.
	ErrInvalidFile = errors.New("invalid audio file")
)

// Source yields interleaved signed 16-bit samples.
type Source interface {
	SampleRate() int
	Channels() int
	// Read fills dst with interleaved samples and returns how many values
	// were written. It returns 0, io.EOF at the end of the stream.
	Read(dst []int16) (int, error)
	Close() error
}

// FileInfo describes an audio file without decoding all of it.
type FileInfo struct {
	Format      string        `json:"format"`
	Channels    int           `json:"channels"`
	SampleRate  int           `json:"sample_rate"`
	SampleWidth int           `json:"sample_width"` // bytes per sample
	Frames      int64         `json:"frames"`
	Duration    time.Duration `json:"duration"`
}

type decoder interface {
	open(f *os.File) (Source, error)
	inspect(f *os.File) (*FileInfo, error)
}

var decoders = map[string]decoder{
	".wav":  wavDecoder{},
	".wave": wavDecoder{},
	".aif":  aiffDecoder{},
	".aiff": aiffDecoder{},
	".mp3":  mp3Decoder{},
	".ogg":  vorbisDecoder{},
	".oga":  vorbisDecoder{},
}

// Supported reports whether path has an extension the package can decode.
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Open opens path and returns a decoding Source. The Source owns the file.
func Open(path string) (Source, error) {
	dec, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the catalog sandbox
	if err != nil {
		return nil, err
	}

	src, err := dec.open(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	return src, nil
}

// Inspect reads format information from path.
func Inspect(path string) (*FileInfo, error) {
	dec, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the catalog sandbox
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := dec.inspect(f)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", filepath.Base(path), err)
	}
	if info.Duration == 0 && info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames * int64(time.Second) / int64(info.SampleRate))
	}
	return info, nil
}

// to16 scales a decoded integer sample of the given bit depth to 16 bits.
func to16(v, bitDepth int, unsigned8 bool) int16 {
	switch bitDepth {
	case 8:
		if unsigned8 {
			v -= 128
		}
		return int16(v << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// fileSource closes the underlying file with the Source.
type fileSource struct {
	f *os.File
}

func (s fileSource) Close() error {
	return s.f.Close()
}
