package recorder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/youpy/go-wav"
)

const (
	// MimeWAV is the encoding every clip carries.
	MimeWAV = "audio/wav"

	clipChannels      = 1
	clipBitsPerSample = 16
)

// AudioClip is one finished recording span: WAV bytes plus metadata.
// A clip is consumed exactly once, sent or discarded.
type AudioClip struct {
	Data       []byte
	Mime       string
	SampleRate int
	Duration   time.Duration
}

func encodeClip(samples []int16, sampleRate int) (*AudioClip, error) {
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(len(samples)), clipChannels, uint32(sampleRate), clipBitsPerSample)

	wavSamples := make([]wav.Sample, len(samples))
	for i, s := range samples {
		wavSamples[i].Values[0] = int(s)
	}
	if err := w.WriteSamples(wavSamples); err != nil {
		return nil, fmt.Errorf("write samples: %w", err)
	}

	var duration time.Duration
	if sampleRate > 0 {
		duration = time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	}

	return &AudioClip{
		Data:       buf.Bytes(),
		Mime:       MimeWAV,
		SampleRate: sampleRate,
		Duration:   duration,
	}, nil
}
