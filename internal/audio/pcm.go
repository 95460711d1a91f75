package audio

import (
	"encoding/binary"
	"io"
)

// PCMReader encodes a mono Source as s16le bytes.
type PCMReader struct {
	src     Source
	samples []int16
	pending []byte
}

// NewPCMStream converts src to mono s16le bytes at rate.
func NewPCMStream(src Source, rate int) *PCMReader {
	var s Source = NewMonoMixer(src)
	if s.SampleRate() != rate {
		s = NewResampler(s, rate)
	}
	return &PCMReader{src: s}
}

// Read implements io.Reader.
func (p *PCMReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	want := max(len(b)/2, 1)
	if cap(p.samples) < want {
		p.samples = make([]int16, want)
	}
	samples := p.samples[:want]

	n, err := p.src.Read(samples)
	if n == 0 {
		if err == nil {
			return 0, nil
		}
		return 0, err
	}

	if len(b) >= n*2 {
		for i := range n {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(samples[i]))
		}
		return n * 2, nil
	}

	// b has room for less than one sample.
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(samples[0]))
	c := copy(b, tmp[:])
	p.pending = append(p.pending[:0], tmp[c:]...)
	return c, nil
}

// Close closes the underlying source.
func (p *PCMReader) Close() error {
	return p.src.Close()
}

var _ io.ReadCloser = (*PCMReader)(nil)
