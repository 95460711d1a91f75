// Package relay turns an audio source into an endless raw PCM byte stream
// per client. It owns the transcoder processes, the chunked relay loop with
// its restart policy, and the registry of active sessions.
package relay

import (
	"fmt"
	"time"
)

// ContentType is the media type advertised for relayed PCM.
const ContentType = "audio/pcm"

// TargetFormat is the fixed output format of every relayed byte.
type TargetFormat struct {
	Encoding   string // ffmpeg muxer name, e.g. s16le
	Codec      string // ffmpeg encoder name, e.g. pcm_s16le
	SampleRate int
	Channels   int
	// Downmix is the filter graph applied to reach Channels.
	Downmix string
}

// DefaultFormat is 16-bit little-endian mono at 32 kHz, stereo averaged
// into one channel with equal weight.
var DefaultFormat = TargetFormat{
	Encoding:   "s16le",
	Codec:      "pcm_s16le",
	SampleRate: 32000,
	Channels:   1,
	Downmix:    "pan=mono|c0=0.5*c0+0.5*c1",
}

// BytesPerSample is the width of one s16le sample.
const BytesPerSample = 2

// FrameSize returns the size in bytes of one sample frame (all channels).
func (f TargetFormat) FrameSize() int {
	return f.Channels * BytesPerSample
}

// BytesPerSecond returns the output byte rate.
func (f TargetFormat) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// ChunkSize returns the number of bytes holding d of audio, rounded down to
// whole frames and never smaller than one frame.
func (f TargetFormat) ChunkSize(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	n -= n % f.FrameSize()
	if n < f.FrameSize() {
		return f.FrameSize()
	}
	return n
}

// Duration converts a byte count into audio time.
func (f TargetFormat) Duration(bytes int64) time.Duration {
	bps := int64(f.BytesPerSecond())
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes * int64(time.Second) / bps)
}

func (f TargetFormat) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Encoding, f.SampleRate, f.Channels)
}
