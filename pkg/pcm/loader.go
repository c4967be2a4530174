// Package pcm decodes canonical WAV files into sample buffers and back.
package pcm

import (
	"os"

	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"voice_verification/entity"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Load decodes the WAV file at path into a channels x samples buffer.
// The sample rate is reported exactly as stored in the file.
func Load(path string) (entity.SampleBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return entity.SampleBuffer{}, errors.Wrap(err, "open")
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return entity.SampleBuffer{}, errors.Wrap(err, "invalid wav file")
		}
		return entity.SampleBuffer{}, errors.New("invalid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return entity.SampleBuffer{}, errors.Errorf("unsupported wav encoding %d", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return entity.SampleBuffer{}, errors.Wrap(err, "decode pcm")
	}

	rate := int(dec.SampleRate)
	if rate <= 0 {
		return entity.SampleBuffer{}, errors.Errorf("invalid sample rate %d", rate)
	}
	numChans := int(dec.NumChans)
	if numChans <= 0 {
		return entity.SampleBuffer{}, errors.Errorf("invalid channel count %d", numChans)
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return entity.SampleBuffer{}, errors.Errorf("invalid bit depth %d", bitDepth)
	}

	scale := 1.0 / float64(uint64(1)<<uint(bitDepth-1))
	// 8-bit PCM is unsigned with silence at 128.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	frames := len(buf.Data) / numChans

	channels := make([][]float64, numChans)
	for c := range channels {
		channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < numChans; c++ {
			channels[c][i] = float64(buf.Data[i*numChans+c]-offset) * scale
		}
	}

	return entity.SampleBuffer{Channels: channels, SampleRate: rate}, nil
}
