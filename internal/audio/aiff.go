package audio

import (
	"os"

	"github.com/go-audio/aiff"
)

type aiffDecoder struct{}

func (aiffDecoder) header(f *os.File) (*aiff.Decoder, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}
	dec.ReadInfo()
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, ErrInvalidFile
	}
	return dec, nil
}

func (d aiffDecoder) open(f *os.File) (Source, error) {
	dec, err := d.header(f)
	if err != nil {
		return nil, err
	}
	return &intSource{
		fileSource: fileSource{f: f},
		pcm:        dec,
		sampleRate: dec.SampleRate,
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}, nil
}

func (d aiffDecoder) inspect(f *os.File) (*FileInfo, error) {
	dec, err := d.header(f)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Format:      "aiff",
		Channels:    int(dec.NumChans),
		SampleRate:  dec.SampleRate,
		SampleWidth: int(dec.BitDepth) / 8,
		Frames:      int64(dec.NumSampleFrames),
	}, nil
}
