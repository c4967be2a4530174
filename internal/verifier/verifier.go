// Package verifier provides the speaker verification capabilities the
// pipeline can be wired with.
package verifier

import (
	"strings"

	"github.com/pkg/errors"

	"voice_verification/config"
	"voice_verification/entity"
)

const (
	ModeRemote   = "remote"
	ModeSpectral = "spectral"
)

// New builds the verifier selected by cfg.Mode.
func New(cfg config.Verifier) (entity.Verifier, error) {
	switch strings.ToLower(cfg.Mode) {
	case ModeRemote:
		if cfg.URL == "" {
			return nil, errors.New("verifier: remote mode requires url")
		}
		return NewRemote(cfg.URL, cfg.Timeout), nil
	case ModeSpectral, "":
		return NewSpectral(cfg.Threshold), nil
	default:
		return nil, errors.Errorf("verifier: unknown mode %q", cfg.Mode)
	}
}
