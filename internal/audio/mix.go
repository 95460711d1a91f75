package audio

import (
	"io"
	"math"
)

// MonoMixer averages all channels of a source into one, rounding to the
// nearest integer (halves away from zero).
type MonoMixer struct {
	src   Source
	tmp   []int16
	carry int // values at the start of tmp left over from a split frame
}

// NewMonoMixer wraps src. Mono sources pass through unchanged.
func NewMonoMixer(src Source) *MonoMixer {
	return &MonoMixer{src: src}
}

func (m *MonoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *MonoMixer) Channels() int   { return 1 }
func (m *MonoMixer) Close() error    { return m.src.Close() }

// Read fills dst with mono samples.
func (m *MonoMixer) Read(dst []int16) (int, error) {
	channels := m.src.Channels()
	if channels == 1 {
		return m.src.Read(dst)
	}
	if len(dst) == 0 {
		return 0, nil
	}

	need := len(dst) * channels
	if cap(m.tmp) < need {
		grown := make([]int16, need)
		copy(grown, m.tmp[:m.carry])
		m.tmp = grown
	}
	m.tmp = m.tmp[:need]

	n, err := m.src.Read(m.tmp[m.carry:])
	n += m.carry

	frames := n / channels
	for f := range frames {
		dst[f] = Downmix(m.tmp[f*channels : (f+1)*channels])
	}

	m.carry = copy(m.tmp, m.tmp[frames*channels:n])
	if frames == 0 && err == io.EOF {
		// A trailing partial frame is dropped.
		m.carry = 0
	}
	if frames > 0 && err == io.EOF {
		return frames, nil
	}
	return frames, err
}

// Downmix returns the rounded average of one frame's samples.
func Downmix(frame []int16) int16 {
	sum := 0
	for _, v := range frame {
		sum += int(v)
	}
	return int16(math.Round(float64(sum) / float64(len(frame))))
}
