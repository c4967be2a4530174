package fsrepo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"voice_verification/entity"
)

const traceName = "FS-Repo"

// FSRepository stores sounds as flat files under root. Writers never
// expose a partially written file: content lands under a hidden temp name
// in root and is renamed onto the final name, so concurrent persists of
// the same key resolve to whichever rename happened last.
type FSRepository struct {
	root string
}

func NewFSRepository(root string) *FSRepository {
	return &FSRepository{root: root}
}

func (r *FSRepository) Root() string { return r.root }

func (r *FSRepository) Persist(ctx context.Context, src string, key entity.IdentityKey) (entity.StoredAudioFile, error) {
	_, span := otel.Tracer(traceName).Start(ctx, "Persist")
	defer span.End()

	name := entity.StoredName(key, filepath.Ext(src))
	if err := checkName(name); err != nil {
		return entity.StoredAudioFile{}, err
	}
	span.SetAttributes(attribute.String("name", name))

	if err := ctx.Err(); err != nil {
		return entity.StoredAudioFile{}, errors.Wrap(err, "persist")
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return entity.StoredAudioFile{}, errors.Wrap(err, "create storage root")
	}

	dst := filepath.Join(r.root, name)
	tmp := filepath.Join(r.root, "."+uuid.NewString()+".tmp")

	if err := os.Rename(src, tmp); err != nil {
		// Source on another device: copy, then drop the source.
		if err := copyFile(src, tmp); err != nil {
			os.Remove(tmp)
			return entity.StoredAudioFile{}, errors.Wrap(err, "stage file")
		}
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			os.Remove(tmp)
			return entity.StoredAudioFile{}, errors.Wrap(err, "remove source")
		}
	}

	// A caller that gave up must not see its file appear afterwards.
	if err := ctx.Err(); err != nil {
		os.Remove(tmp)
		return entity.StoredAudioFile{}, errors.Wrap(err, "persist")
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return entity.StoredAudioFile{}, errors.Wrap(err, "replace stored file")
	}

	fi, err := os.Stat(dst)
	if err != nil {
		return entity.StoredAudioFile{}, errors.Wrap(err, "stat stored file")
	}

	return entity.StoredAudioFile{
		Key:      key,
		Name:     name,
		Location: dst,
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
	}, nil
}

func (r *FSRepository) List(ctx context.Context, userID string) ([]entity.StoredAudioFile, error) {
	_, span := otel.Tracer(traceName).Start(ctx, "List")
	defer span.End()

	entries, err := os.ReadDir(r.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read storage root")
	}

	var out []entity.StoredAudioFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !entity.BelongsTo(name, userID) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, entity.StoredAudioFile{
			Key:      entity.IdentityKey{UserID: userID},
			Name:     name,
			Location: filepath.Join(r.root, name),
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *FSRepository) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(r.root, name))
	if err != nil {
		return nil, errors.Wrap(err, "open stored file")
	}
	return f, nil
}

func checkName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return errors.Errorf("invalid stored name %q", name)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
