package archive

import (
	"archive/tar"
	"context"
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type TarArchiever struct {
}

func NewTarArchiever() Archiver {
	return &TarArchiever{}
}

func (a *TarArchiever) Ext() string         { return ".tar" }
func (a *TarArchiever) ContentType() string { return "application/x-tar" }

func (a *TarArchiever) Compress(ctx context.Context, members []Member, w io.Writer) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "compress - tar")
	defer span.End()
	span.SetAttributes(attribute.Int("members", len(members)))

	tw := tar.NewWriter(w)
	if err := writeMembers(ctx, tw, members); err != nil {
		return err
	}
	return errors.Wrap(tw.Close(), "close tar")
}

func writeMembers(ctx context.Context, tw *tar.Writer, members []Member) error {
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeMember(tw, m); err != nil {
			return errors.Wrapf(err, "archive %s", m.Name)
		}
	}
	return nil
}

func writeMember(tw *tar.Writer, m Member) error {
	rc, err := m.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := &tar.Header{
		Name:    m.Name,
		Mode:    int64(0600),
		Size:    m.Size,
		ModTime: m.ModTime,
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	n, err := io.Copy(tw, rc)
	if err != nil {
		return err
	}
	if n != m.Size {
		return errors.Errorf("size changed while archiving: wrote %d of %d bytes", n, m.Size)
	}
	return nil
}
