package archive

import (
	"context"
	"io"
	"time"
)

const traceName = "archive"

// Member is one archive entry; Open is called only when the entry is written.
type Member struct {
	Name    string
	Size    int64
	ModTime time.Time
	Open    func() (io.ReadCloser, error)
}

type Archiver interface {
	Compress(ctx context.Context, members []Member, w io.Writer) error
	Ext() string
	ContentType() string
}
