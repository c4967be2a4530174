package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type TarGzArchiever struct {
}

func NewTarGzArchiever() Archiver {
	return &TarGzArchiever{}
}

func (gz *TarGzArchiever) Ext() string         { return ".tar.gz" }
func (gz *TarGzArchiever) ContentType() string { return "application/gzip" }

func (gz *TarGzArchiever) Compress(ctx context.Context, members []Member, w io.Writer) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "compress - tar gz")
	defer span.End()
	span.SetAttributes(attribute.Int("members", len(members)))

	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	if err := writeMembers(ctx, tw, members); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "close tar")
	}
	return errors.Wrap(gw.Close(), "close gzip")
}
