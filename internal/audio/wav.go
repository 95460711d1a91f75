package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

type wavDecoder struct{}

func (wavDecoder) header(f *os.File) (*wav.Decoder, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, ErrInvalidFile
	}
	return dec, nil
}

func (d wavDecoder) open(f *os.File) (Source, error) {
	dec, err := d.header(f)
	if err != nil {
		return nil, err
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	return &intSource{
		fileSource: fileSource{f: f},
		pcm:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
		unsigned8:  true,
	}, nil
}

func (d wavDecoder) inspect(f *os.File) (*FileInfo, error) {
	dec, err := d.header(f)
	if err != nil {
		return nil, err
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}

	width := int(dec.BitDepth) / 8
	frames := int64(0)
	if width > 0 {
		frames = int64(dec.PCMLen()) / int64(width*int(dec.NumChans))
	}
	return &FileInfo{
		Format:      "wav",
		Channels:    int(dec.NumChans),
		SampleRate:  int(dec.SampleRate),
		SampleWidth: width,
		Frames:      frames,
	}, nil
}

// pcmBufferReader is satisfied by the go-audio wav and aiff decoders.
type pcmBufferReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// intSource adapts a go-audio integer PCM decoder.
type intSource struct {
	fileSource
	pcm        pcmBufferReader
	sampleRate int
	channels   int
	bitDepth   int
	unsigned8  bool
	buf        *goaudio.IntBuffer
}

func (s *intSource) SampleRate() int { return s.sampleRate }
func (s *intSource) Channels() int   { return s.channels }

func (s *intSource) Read(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.buf == nil || cap(s.buf.Data) < len(dst) {
		s.buf = &goaudio.IntBuffer{Data: make([]int, len(dst))}
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.pcm.PCMBuffer(s.buf)
	for i := range n {
		dst[i] = to16(s.buf.Data[i], s.bitDepth, s.unsigned8)
	}
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	return n, err
}
