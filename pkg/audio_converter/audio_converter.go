package audio_converter

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	defaultBinary = "ffmpeg"
	stderrTail    = 3
)

// ConversionError carries the source path and the codec's own message.
type ConversionError struct {
	Path   string
	Detail string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Detail != "" {
		return e.Path + ": " + e.Detail
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }

type AudioConverter struct {
	binary string
}

func NewAudioConverter(binary string) *AudioConverter {
	if binary == "" {
		binary = defaultBinary
	}
	return &AudioConverter{binary: binary}
}

// ConvertToWav decodes any container ffmpeg understands and writes it to dst
// as 16-bit PCM WAV, keeping the source's channel layout and sample rate.
// The source file is left in place.
func (ac *AudioConverter) ConvertToWav(ctx context.Context, src, dst string) error {
	args := ffmpeg.Input(src).
		Output(dst, ffmpeg.KwArgs{"acodec": "pcm_s16le", "f": "wav"}).
		OverWriteOutput().
		GetArgs()

	// Stream.Compile always resolves "ffmpeg" from PATH, which would ignore
	// a configured binary.
	stderr := &bytes.Buffer{}
	cmd := exec.CommandContext(ctx, ac.binary, append([]string{"-hide_banner", "-nostdin"}, args...)...)
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ConversionError{Path: src, Err: ctxErr}
		}
		return &ConversionError{Path: src, Detail: tail(stderr.String(), stderrTail), Err: errors.Wrap(err, "ffmpeg")}
	}

	return nil
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
