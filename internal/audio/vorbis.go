package audio

import (
	"math"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

type vorbisDecoder struct{}

func (vorbisDecoder) open(f *os.File) (Source, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}
	return &vorbisSource{fileSource: fileSource{f: f}, dec: dec}, nil
}

func (vorbisDecoder) inspect(f *os.File) (*FileInfo, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Format:      "ogg",
		Channels:    dec.Channels(),
		SampleRate:  dec.SampleRate(),
		SampleWidth: 2,
		Frames:      dec.Length(),
	}, nil
}

type vorbisSource struct {
	fileSource
	dec *oggvorbis.Reader
	buf []float32
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }

func (s *vorbisSource) Read(dst []int16) (int, error) {
	if cap(s.buf) < len(dst) {
		s.buf = make([]float32, len(dst))
	}
	buf := s.buf[:len(dst)]

	n, err := s.dec.Read(buf)
	for i := range n {
		dst[i] = floatTo16(buf[i])
	}
	return n, err
}

func floatTo16(v float32) int16 {
	x := math.Round(float64(v) * 32767)
	return int16(max(-32768, min(32767, x)))
}
