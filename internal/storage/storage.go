package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the upload limit used when none is configured (5 MiB).
const DefaultMaxBytes int64 = 5 << 20

var (
	ErrInvalidType  = errors.New("invalid file type, only images are allowed")
	ErrTooLarge     = errors.New("file exceeds the upload size limit")
	ErrEmpty        = errors.New("no file uploaded")
	ErrBlobNotFound = errors.New("blob not found")
)

// IsRejected reports whether err means the upload itself was refused, as opposed
// to a failure of the backend.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidType) || errors.Is(err, ErrTooLarge) || errors.Is(err, ErrEmpty)
}

// Upload is an image received from the admin dashboard.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store persists uploaded images and hands back the reference records keep.
type Store interface {
	// Put validates and stores the upload, returning its public reference.
	Put(ctx context.Context, u Upload) (string, error)
	// Delete removes the blob behind ref. References owned by another host are ignored.
	Delete(ctx context.Context, ref string) error
	// Owns reports whether ref points into this store.
	Owns(ref string) bool
	// List returns the reference of every stored blob.
	List(ctx context.Context) ([]string, error)
}

// Gate holds the checks applied to every upload before it reaches a backend.
type Gate struct {
	MaxBytes int64
}

// Check rejects non-image content types first, then empty and oversized payloads,
// then payloads whose bytes do not look like an image whatever the declared type.
func (g Gate) Check(u Upload) error {
	declared, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil || !strings.HasPrefix(declared, "image/") {
		return fmt.Errorf("%w: %q", ErrInvalidType, u.ContentType)
	}
	if len(u.Data) == 0 {
		return ErrEmpty
	}
	max := g.MaxBytes
	if max <= 0 {
		max = DefaultMaxBytes
	}
	if int64(len(u.Data)) > max {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(u.Data), max)
	}
	detected := mimetype.Detect(u.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return fmt.Errorf("%w: content looks like %s", ErrInvalidType, detected.String())
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectName builds the stored name "{unixMillis}-{originalName}" with path
// separators and unusual characters replaced.
func objectName(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		base = "image"
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), base)
}
