package audio

import (
	"encoding/binary"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to interleaved stereo s16le.
const (
	mp3Channels  = 2
	mp3FrameSize = 4
)

type mp3Decoder struct{}

func (mp3Decoder) open(f *os.File) (Source, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	return &mp3Source{fileSource: fileSource{f: f}, dec: dec}, nil
}

func (mp3Decoder) inspect(f *os.File) (*FileInfo, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	frames := int64(0)
	if n := dec.Length(); n > 0 {
		frames = n / mp3FrameSize
	}
	return &FileInfo{
		Format:      "mp3",
		Channels:    mp3Channels,
		SampleRate:  dec.SampleRate(),
		SampleWidth: 2,
		Frames:      frames,
	}, nil
}

type mp3Source struct {
	fileSource
	dec *gomp3.Decoder
	buf []byte
	// odd holds a trailing byte when a read split a sample.
	odd []byte
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return mp3Channels }

func (s *mp3Source) Read(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	lead := copy(buf, s.odd)
	s.odd = s.odd[:0]
	n, err := s.dec.Read(buf[lead:])
	n += lead

	samples := n / 2
	for i := range samples {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	if n%2 == 1 {
		s.odd = append(s.odd, buf[n-1])
	}

	if samples == 0 && err == nil {
		// Partial sample only; keep reading.
		return 0, nil
	}
	if err == io.EOF && samples > 0 {
		return samples, nil
	}
	return samples, err
}
