package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/researchlab/labsite/internal/content"
)

// FileRepo keeps the document in a single JSON file, e.g. public/data/data.json.
type FileRepo struct {
	path string

	mu    sync.Mutex
	ready bool
}

func NewFileRepo(path string) *FileRepo {
	return &FileRepo{path: path}
}

// Path returns the backing file location.
func (f *FileRepo) Path() string { return f.path }

// ensure creates the directory and an empty document the first time it is needed.
func (f *FileRepo) ensure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ready {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(f.path, []byte("{}\n")); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}
	f.ready = true
	return nil
}

func (f *FileRepo) Load(ctx context.Context) (content.Document, error) {
	if err := f.ensure(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		// removed after startup; recreating it here would hide lost content
		return nil, fmt.Errorf("%w: data file %s is missing", content.ErrCorrupt, f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	return parse(raw)
}

func (f *FileRepo) Save(ctx context.Context, doc content.Document) error {
	if err := f.ensure(); err != nil {
		return err
	}
	b, err := render(doc)
	if err != nil {
		return err
	}
	return writeAtomic(f.path, b)
}

// writeAtomic replaces path through a synced temp file in the same
// directory, so a crash mid-write leaves the previous document in place.
func writeAtomic(path string, b []byte) error {
	if err := renameio.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}
