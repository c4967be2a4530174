package verification

import (
	"github.com/pkg/errors"

	"voice_verification/config"
	"voice_verification/internal/storage"
	"voice_verification/internal/verifier"
	"voice_verification/pkg/audio_converter"
	"voice_verification/pkg/logger"
)

// FromConfig wires the pipeline components selected by cfg. Extra options
// are applied after the ones derived from cfg.
func FromConfig(cfg *config.Config, l logger.Interface, opts ...Option) (*VerificationUsecase, error) {
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "storage")
	}

	v, err := verifier.New(cfg.Verifier)
	if err != nil {
		return nil, err
	}

	all := append([]Option{
		WorkDir(cfg.Pipeline.WorkDir),
		StageTimeout(cfg.Pipeline.StageTimeout),
	}, opts...)

	return NewVerificationUsecase(l, audio_converter.NewAudioConverter(cfg.Pipeline.FFmpegPath), v, store, all...), nil
}
