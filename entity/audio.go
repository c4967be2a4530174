package entity

import (
	"io"
	"path/filepath"
	"strings"
)

// DefaultExtension is used for stored sounds whose source carried none.
const DefaultExtension = ".wav"

// UploadedAudio is one multipart file part. Filename is only a format hint.
type UploadedAudio struct {
	Field    string
	Filename string
	Body     io.Reader
}

// Ext returns the lowercased extension of the declared filename.
func (u UploadedAudio) Ext() string {
	return strings.ToLower(filepath.Ext(u.Filename))
}

// SampleBuffer holds decoded audio as channels x samples in [-1, 1].
type SampleBuffer struct {
	Channels   [][]float64
	SampleRate int
}

// NumSamples returns the per-channel sample count.
func (b SampleBuffer) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// MonoBuffer is a single channel signal.
type MonoBuffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the signal length in seconds.
func (m MonoBuffer) Duration() float64 {
	if m.SampleRate <= 0 {
		return 0
	}
	return float64(len(m.Samples)) / float64(m.SampleRate)
}
