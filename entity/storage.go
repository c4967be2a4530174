package entity

import (
	"context"
	"io"
	"strings"
	"time"
)

type IdentityKey struct {
	UserID  string
	SoundID string
}

// StoredName maps a key and source extension to the durable file name.
// It is a pure function: the same inputs always produce the same name.
func StoredName(key IdentityKey, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	return key.SoundID + UserIDSeparator + key.UserID + ext
}

// UserIDSeparator joins sound and user in a stored name. User IDs may not
// contain it, so the text after its last occurrence names the owner.
const UserIDSeparator = "_"

// BelongsTo reports whether a stored name was produced for userID.
func BelongsTo(name, userID string) bool {
	if userID == "" || strings.Contains(userID, UserIDSeparator) {
		return false
	}
	base := name
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	i := strings.LastIndex(base, UserIDSeparator)
	return i > 0 && base[i+1:] == userID
}

type StoredAudioFile struct {
	Key      IdentityKey
	Name     string
	Location string
	Size     int64
	ModTime  time.Time
}

// StorageRepository keeps identity-keyed sounds. Persist moves src into
// storage, replacing any previous file under the same name.
type StorageRepository interface {
	Persist(ctx context.Context, src string, key IdentityKey) (StoredAudioFile, error)
	List(ctx context.Context, userID string) ([]StoredAudioFile, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
