package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalStore keeps uploads in a directory served under a URL prefix, e.g.
// public/uploads served as /uploads/.
type LocalStore struct {
	dir    string
	prefix string
	gate   Gate
	now    func() time.Time

	mu    sync.Mutex
	ready bool
}

// NewLocalStore returns a store rooted at dir. The directory is created on first use.
func NewLocalStore(dir, urlPrefix string, maxBytes int64) *LocalStore {
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalStore{dir: dir, prefix: urlPrefix, gate: Gate{MaxBytes: maxBytes}, now: time.Now}
}

// Dir returns the directory holding the blobs.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) ensureDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	s.ready = true
	return nil
}

func (s *LocalStore) Put(ctx context.Context, u Upload) (string, error) {
	if err := s.gate.Check(u); err != nil {
		return "", err
	}
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	now := s.now()
	for attempt := 0; attempt < 5; attempt++ {
		name := objectName(u.Name, now.Add(time.Duration(attempt)*time.Millisecond))
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create blob: %w", err)
		}
		if _, err := f.Write(u.Data); err != nil {
			f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write blob: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close blob: %w", err)
		}
		return s.prefix + name, nil
	}
	return "", fmt.Errorf("create blob: name collision for %q", u.Name)
}

func (s *LocalStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, s.prefix)
}

// name extracts the file name from ref, refusing anything that would leave the directory.
func (s *LocalStore) name(ref string) (string, bool) {
	n := strings.TrimPrefix(ref, s.prefix)
	if n == "" || n == "." || n == ".." || strings.ContainsAny(n, `/\`) {
		return "", false
	}
	return n, true
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if !s.Owns(ref) {
		return nil
	}
	n, ok := s.name(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	if err := os.Remove(filepath.Join(s.dir, n)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, s.prefix+e.Name())
	}
	sort.Strings(out)
	return out, nil
}
