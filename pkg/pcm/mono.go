package pcm

import (
	"github.com/pkg/errors"

	"voice_verification/entity"
)

var ErrEmptySignal = errors.New("empty signal")

// ToMono averages all channels sample-wise. Buffers without channels or
// samples are rejected with ErrEmptySignal.
func ToMono(buf entity.SampleBuffer) (entity.MonoBuffer, error) {
	n := buf.NumSamples()
	if len(buf.Channels) == 0 || n == 0 {
		return entity.MonoBuffer{}, ErrEmptySignal
	}
	if len(buf.Channels) == 1 {
		out := make([]float64, n)
		copy(out, buf.Channels[0])
		return entity.MonoBuffer{Samples: out, SampleRate: buf.SampleRate}, nil
	}

	out := make([]float64, n)
	for _, ch := range buf.Channels {
		if len(ch) != n {
			return entity.MonoBuffer{}, errors.Errorf("ragged buffer: channel has %d samples, want %d", len(ch), n)
		}
		for i, s := range ch {
			out[i] += s
		}
	}
	inv := 1.0 / float64(len(buf.Channels))
	for i := range out {
		out[i] *= inv
	}
	return entity.MonoBuffer{Samples: out, SampleRate: buf.SampleRate}, nil
}
