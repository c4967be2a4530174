// Package storage picks the StorageRepository backend from config.
package storage

import (
	"strings"

	"github.com/pkg/errors"

	"voice_verification/config"
	"voice_verification/entity"
	"voice_verification/internal/storage/fsrepo"
	"voice_verification/internal/storage/s3repo"
)

func New(cfg config.Storage) (entity.StorageRepository, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		return fsrepo.NewFSRepository(cfg.Root), nil
	case "s3":
		repo, err := s3repo.NewS3Repository(cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, errors.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
