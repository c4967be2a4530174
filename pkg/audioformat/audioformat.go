// Package audioformat routes uploads to a decoder by looking at their
// leading bytes, using the declared extension only when the content is
// inconclusive.
package audioformat

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
)

// SniffLen is the number of leading bytes Detect looks at.
const SniffLen = 512

var ErrUnsupported = errors.New("unsupported audio format")

type Format struct {
	Name string
	// Canonical formats are decoded directly, the rest go through ffmpeg.
	Canonical bool
}

var (
	WAV  = Format{Name: "wav", Canonical: true}
	WebM = Format{Name: "webm"}
	M4A  = Format{Name: "m4a"}
	Ogg  = Format{Name: "ogg"}
	FLAC = Format{Name: "flac"}
	MP3  = Format{Name: "mp3"}
	AIFF = Format{Name: "aiff"}
	AAC  = Format{Name: "aac"}
	AMR  = Format{Name: "amr"}
)

// byExtension is consulted only when the header matches nothing.
var byExtension = map[string]Format{
	".wav":  WAV,
	".m4a":  M4A,
	".webm": WebM,
}

// byKind maps filetype matches to formats ffmpeg can turn into WAV.
// Containers that may carry only an audio track count as audio.
var byKind = map[string]Format{
	"wav":  WAV,
	"webm": WebM,
	"mkv":  WebM,
	"m4a":  M4A,
	"mp4":  M4A,
	"m4v":  M4A,
	"mov":  M4A,
	"3gp":  M4A,
	"ogg":  Ogg,
	"flac": FLAC,
	"mp3":  MP3,
	"aiff": AIFF,
	"aac":  AAC,
	"amr":  AMR,
}

// Detect identifies the audio format from header, falling back to the
// extension of filename.
func Detect(header []byte, filename string) (Format, error) {
	if len(header) > SniffLen {
		header = header[:SniffLen]
	}

	// filetype has no RF64 matcher.
	if len(header) >= 12 && bytes.Equal(header[0:4], []byte("RF64")) && bytes.Equal(header[8:12], []byte("WAVE")) {
		return WAV, nil
	}

	if len(header) > 0 {
		kind, err := filetype.Match(header)
		if err != nil {
			return Format{}, errors.Wrap(err, "match header")
		}
		if kind != filetype.Unknown {
			if f, ok := byKind[kind.Extension]; ok {
				return f, nil
			}
			return Format{}, errors.Wrapf(ErrUnsupported, "content type %s", kind.MIME.Value)
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := byExtension[ext]; ok {
		return f, nil
	}

	return Format{}, errors.Wrapf(ErrUnsupported, "extension %q", ext)
}
