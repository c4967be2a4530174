package pcm

import (
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"voice_verification/entity"
)

// Encode writes buf as integer PCM WAV with the given bit depth.
func Encode(w io.WriteSeeker, buf entity.SampleBuffer, bitDepth int) error {
	if len(buf.Channels) == 0 {
		return errors.New("no channels")
	}
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return errors.Errorf("unsupported bit depth %d", bitDepth)
	}
	numChans := len(buf.Channels)
	frames := buf.NumSamples()

	maxVal := float64(uint64(1)<<uint(bitDepth-1)) - 1
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	data := make([]int, frames*numChans)
	for i := 0; i < frames; i++ {
		for c := 0; c < numChans; c++ {
			s := math.Max(-1, math.Min(1, buf.Channels[c][i]))
			data[i*numChans+c] = int(math.Round(s*maxVal)) + offset
		}
	}

	enc := wav.NewEncoder(w, buf.SampleRate, bitDepth, numChans, wavFormatPCM)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return errors.Wrap(err, "write samples")
	}
	return errors.Wrap(enc.Close(), "finalize wav")
}

// EncodeMono writes a 16-bit mono WAV of m into memory.
func EncodeMono(m entity.MonoBuffer) ([]byte, error) {
	ws := &seekBuffer{}
	buf := entity.SampleBuffer{Channels: [][]float64{m.Samples}, SampleRate: m.SampleRate}
	if err := Encode(ws, buf, 16); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteFile writes buf to path as a WAV file.
func WriteFile(path string, buf entity.SampleBuffer, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create")
	}
	if err := Encode(f, buf, bitDepth); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close")
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes once all samples are written.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	s.pos = int(abs)
	return abs, nil
}
