package audio

import (
	"errors"
	"io"
	"math"
)

const resampleBlock = 4096

// Resampler converts a mono source to another sample rate by linear
// interpolation. Equal rates pass samples through unchanged.
type Resampler struct {
	src     Source
	srcRate int64
	dstRate int64

	// pos is the read position in buf, in units of 1/dstRate source samples.
	pos int64
	buf []int16
	in  []int16
	eof bool
	err error
}

// NewResampler wraps a mono src, producing samples at rate.
func NewResampler(src Source, rate int) *Resampler {
	return &Resampler{
		src:     src,
		srcRate: int64(src.SampleRate()),
		dstRate: int64(rate),
		in:      make([]int16, resampleBlock),
	}
}

func (r *Resampler) SampleRate() int { return int(r.dstRate) }
func (r *Resampler) Channels() int   { return 1 }
func (r *Resampler) Close() error    { return r.src.Close() }

// Read fills dst with resampled samples.
func (r *Resampler) Read(dst []int16) (int, error) {
	n := 0
	for n < len(dst) && r.err == nil {
		i := int(r.pos / r.dstRate)
		frac := r.pos % r.dstRate

		if i+1 >= len(r.buf) {
			if !r.eof {
				r.err = r.fill()
				continue
			}
			// Final sample can only be emitted when it lands exactly.
			if i < len(r.buf) && frac == 0 {
				dst[n] = r.buf[i]
				n++
				r.pos += r.srcRate
			}
			break
		}

		a, b := int64(r.buf[i]), int64(r.buf[i+1])
		v := float64(a) + float64((b-a)*frac)/float64(r.dstRate)
		dst[n] = int16(math.Round(v))
		n++
		r.pos += r.srcRate
	}

	if n > 0 {
		return n, nil
	}
	if r.err != nil {
		return 0, r.err
	}
	return 0, io.EOF
}

// fill drops consumed samples and appends the next block from the source.
func (r *Resampler) fill() error {
	if drop := int(r.pos / r.dstRate); drop > 0 {
		drop = min(drop, len(r.buf))
		r.buf = append(r.buf[:0], r.buf[drop:]...)
		r.pos -= int64(drop) * r.dstRate
	}

	n, err := r.src.Read(r.in)
	r.buf = append(r.buf, r.in[:n]...)
	switch {
	case errors.Is(err, io.EOF):
		r.eof = true
		return nil
	case err != nil:
		return err
	}
	return nil
}
