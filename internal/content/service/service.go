package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/content"
	"github.com/researchlab/labsite/internal/content/repository"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/researchlab/labsite/pkg/logger"
	"github.com/researchlab/labsite/pkg/metrics"
)

// Cleanup statuses reported for each blob reference a mutation dropped.
const (
	CleanupDeleted = "deleted"
	CleanupMissing = "missing"
	CleanupFailed  = "failed"
)

// CleanupOutcome is the result of one best-effort blob delete.
type CleanupOutcome struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result is what a mutation returns: the record as stored and the blob
// deletions that ran after the document was saved.
type Result struct {
	Record  content.Record   `json:"record"`
	Cleanup []CleanupOutcome `json:"cleanup,omitempty"`
}

// Service runs section and record operations against the content document.
// Mutations hold one lock across load, mutate and save.
type Service struct {
	mu    sync.Mutex
	repo  repository.Repository
	blobs storage.Store
	now   func() time.Time
	newID func(time.Time) string
}

func New(repo repository.Repository, blobs storage.Store) *Service {
	return &Service{repo: repo, blobs: blobs, now: time.Now, newID: content.NewID}
}

// List returns the raw section value. An absent collection lists as [] and an
// absent singleton as {}.
func (s *Service) List(ctx context.Context, section string) (json.RawMessage, error) {
	if !content.ValidSection(section) {
		return nil, content.ErrInvalidSection
	}
	doc, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	raw, ok := doc[section]
	if !ok {
		if content.Lookup(section).Kind == content.KindSingleton {
			return json.RawMessage(`{}`), nil
		}
		return json.RawMessage(`[]`), nil
	}
	return raw, nil
}

func (s *Service) Get(ctx context.Context, section, id string) (content.Record, error) {
	if !content.ValidSection(section) {
		return nil, content.ErrInvalidSection
	}
	if !content.ValidID(id) {
		return nil, content.ErrInvalidID
	}
	doc, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := records(doc, section)
	if err != nil {
		return nil, err
	}
	i := indexOf(recs, id)
	if i < 0 {
		return nil, content.ErrRecordNotFound
	}
	return recs[i], nil
}

// Append adds payload to a collection under a fresh id, or replaces a singleton.
func (s *Service) Append(ctx context.Context, section string, payload content.Record) (Result, error) {
	if err := authorize(ctx); err != nil {
		return Result{}, err
	}
	if !content.ValidSection(section) {
		return Result{}, content.ErrInvalidSection
	}
	if payload == nil {
		return Result{}, fmt.Errorf("%w: payload must be an object", content.ErrInvalidShape)
	}
	sec := content.Lookup(section)

	s.mu.Lock()
	doc, err := s.repo.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}

	var (
		stored  content.Record
		dropped []string
		op      = "append"
	)
	if sec.Kind == content.KindSingleton {
		if err := sec.Validate(payload); err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
		if raw, ok := doc[section]; ok {
			var prev any
			if err := content.Decode(raw, &prev); err == nil {
				dropped = content.DroppedRefs(prev, payload)
			}
		}
		stored, op = payload, "replace"
		if doc[section], err = content.Encode(stored); err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
	} else {
		var recs []content.Record
		if raw, ok := doc[section]; ok {
			if recs, err = content.DecodeRecords(raw); err != nil {
				s.mu.Unlock()
				return Result{}, err
			}
		}
		stored = payload.Merge(nil)
		stored["id"] = s.newID(s.now())
		if err := sec.Validate(stored); err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
		recs = append(recs, stored)
		if doc[section], err = content.Encode(recs); err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	s.mu.Unlock()

	s.committed(ctx, section, op, stored.ID())
	return Result{Record: stored, Cleanup: s.cleanup(ctx, dropped)}, nil
}

// Update shallow-merges patch into the record. Image references the merge
// drops are deleted after the document is saved.
func (s *Service) Update(ctx context.Context, section, id string, patch content.Record) (Result, error) {
	if err := authorize(ctx); err != nil {
		return Result{}, err
	}
	if !content.ValidSection(section) {
		return Result{}, content.ErrInvalidSection
	}
	if !content.ValidID(id) {
		return Result{}, content.ErrInvalidID
	}
	sec := content.Lookup(section)

	s.mu.Lock()
	doc, err := s.repo.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	recs, err := records(doc, section)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	i := indexOf(recs, id)
	if i < 0 {
		s.mu.Unlock()
		return Result{}, content.ErrRecordNotFound
	}
	prev := recs[i]
	merged := prev.Merge(patch)
	if err := sec.Validate(merged); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	recs[i] = merged
	if doc[section], err = content.Encode(recs); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	s.mu.Unlock()

	s.committed(ctx, section, "update", id)
	return Result{Record: merged, Cleanup: s.cleanup(ctx, content.DroppedRefs(prev, merged))}, nil
}

// Delete removes the record, keeping the order of the others, and then deletes
// every image it referenced, nested ones included.
func (s *Service) Delete(ctx context.Context, section, id string) (Result, error) {
	if err := authorize(ctx); err != nil {
		return Result{}, err
	}
	if !content.ValidSection(section) {
		return Result{}, content.ErrInvalidSection
	}
	if !content.ValidID(id) {
		return Result{}, content.ErrInvalidID
	}

	s.mu.Lock()
	doc, err := s.repo.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	recs, err := records(doc, section)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	i := indexOf(recs, id)
	if i < 0 {
		s.mu.Unlock()
		return Result{}, content.ErrRecordNotFound
	}
	removed := recs[i]
	rest := make([]content.Record, 0, len(recs)-1)
	rest = append(rest, recs[:i]...)
	rest = append(rest, recs[i+1:]...)
	if doc[section], err = content.Encode(rest); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	s.mu.Unlock()

	s.committed(ctx, section, "delete", id)
	return Result{Record: removed, Cleanup: s.cleanup(ctx, content.ImageRefs(removed))}, nil
}

// Export returns the whole document.
func (s *Service) Export(ctx context.Context) (content.Document, error) {
	return s.repo.Load(ctx)
}

// Import replaces the whole document. Blobs the old document referenced are
// left in place; run Sweep to reclaim them.
func (s *Service) Import(ctx context.Context, doc content.Document) error {
	if err := authorize(ctx); err != nil {
		return err
	}
	for name, raw := range doc {
		if !content.ValidSection(name) {
			return fmt.Errorf("%w: %q", content.ErrInvalidSection, name)
		}
		if err := checkSection(name, raw); err != nil {
			return err
		}
	}
	s.mu.Lock()
	err := s.repo.Save(ctx, doc)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.committed(ctx, "*", "import", "")
	return nil
}

func checkSection(name string, raw json.RawMessage) error {
	sec := content.Lookup(name)
	if sec.Kind == content.KindSingleton {
		rec, err := content.DecodeObject(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return sec.Validate(rec)
	}
	recs, err := content.DecodeRecords(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, r := range recs {
		if r.ID() == "" {
			return fmt.Errorf("%w: %s: record without id", content.ErrInvalidShape, name)
		}
		if err := sec.Validate(r); err != nil {
			return err
		}
	}
	return nil
}

// cleanup attempts exactly one delete per reference. Failures are logged and
// counted but never returned.
func (s *Service) cleanup(ctx context.Context, refs []string) []CleanupOutcome {
	if len(refs) == 0 || s.blobs == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	out := make([]CleanupOutcome, 0, len(refs))
	for _, ref := range refs {
		out = append(out, s.deleteBlob(ctx, ref))
	}
	return out
}

func (s *Service) deleteBlob(ctx context.Context, ref string) CleanupOutcome {
	o := CleanupOutcome{Ref: ref, Status: CleanupDeleted}
	if err := s.blobs.Delete(ctx, ref); err != nil {
		o.Error = err.Error()
		if errors.Is(err, storage.ErrBlobNotFound) {
			o.Status = CleanupMissing
			logger.Warnf("blob cleanup: %s already gone", ref)
		} else {
			o.Status = CleanupFailed
			logger.Errorf("blob cleanup: delete %s: %v", ref, err)
		}
	}
	metrics.BlobCleanups.WithLabelValues(o.Status).Inc()
	return o
}

func (s *Service) committed(ctx context.Context, section, op, id string) {
	metrics.ContentMutations.WithLabelValues(section, op).Inc()
	sub, _ := admin.Principal(ctx)
	logger.Infof("content %s %s id=%s by=%s", op, section, id, sub)
}

func authorize(ctx context.Context) error {
	if !admin.IsAdmin(ctx) {
		return content.ErrUnauthorized
	}
	return nil
}

// records decodes a collection section that must be present.
func records(doc content.Document, section string) ([]content.Record, error) {
	raw, ok := doc[section]
	if !ok {
		return nil, content.ErrSectionNotFound
	}
	return content.DecodeRecords(raw)
}

func indexOf(recs []content.Record, id string) int {
	for i, r := range recs {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
