package repository

import (
	"context"
	"sync"

	"github.com/researchlab/labsite/internal/content"
)

// MemoryRepo holds the document in memory. It stores the rendered bytes so a
// loaded document never aliases the saved one.
type MemoryRepo struct {
	mu  sync.RWMutex
	raw []byte
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{raw: []byte("{}")}
}

// NewMemoryRepoFrom seeds the repository with an existing JSON document.
func NewMemoryRepoFrom(raw []byte) *MemoryRepo {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &MemoryRepo{raw: cp}
}

func (m *MemoryRepo) Load(ctx context.Context) (content.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return parse(m.raw)
}

func (m *MemoryRepo) Save(ctx context.Context, doc content.Document) error {
	b, err := render(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = b
	m.mu.Unlock()
	return nil
}

// Bytes returns a copy of the stored document.
func (m *MemoryRepo) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]byte, len(m.raw))
	copy(cp, m.raw)
	return cp
}
