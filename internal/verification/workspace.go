package verification

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"voice_verification/entity"
)

const redactedDir = "<upload>"

// workspace is the per-request scratch directory. Everything created for
// a request lives here and goes away with Close on every exit path.
type workspace struct {
	dir string
}

func newWorkspace(root string) (*workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, errors.Wrap(err, "create work dir")
		}
	}
	dir, err := os.MkdirTemp(root, "verify-*")
	if err != nil {
		return nil, errors.Wrap(err, "create workspace")
	}
	return &workspace{dir: dir}, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// save copies an upload to upload-<field><ext> and returns its path.
func (w *workspace) save(field string, up *entity.UploadedAudio) (string, error) {
	p := w.path("upload-" + field + up.Ext())
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", errors.Wrap(err, "create upload file")
	}
	if _, err := io.Copy(f, up.Body); err != nil {
		f.Close()
		return "", errors.Wrap(err, "read upload")
	}
	return p, errors.Wrap(f.Close(), "close upload file")
}

func (w *workspace) Close() error {
	return os.RemoveAll(w.dir)
}

// redact hides the workspace location from caller-visible messages.
func (w *workspace) redact(err error) error {
	var pe *entity.PipelineError
	if err == nil || !errors.As(err, &pe) || pe.Err == nil {
		return err
	}
	msg := pe.Err.Error()
	if !strings.Contains(msg, w.dir) {
		return err
	}
	return entity.NewError(pe.Kind, pe.Subject, &redactedError{
		msg: strings.ReplaceAll(msg, w.dir, redactedDir),
		err: pe.Err,
	})
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
