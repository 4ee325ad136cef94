package service

import (
	"context"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/researchlab/labsite/internal/content"
	"github.com/researchlab/labsite/pkg/logger"
)

// DefaultSweepGrace keeps fresh uploads out of a sweep; the dashboard uploads an
// image before it saves the record that references it.
const DefaultSweepGrace = time.Hour

// SweepReport lists the stored blobs no record references.
type SweepReport struct {
	DryRun     bool             `json:"dryRun"`
	Scanned    int              `json:"scanned"`
	Referenced int              `json:"referenced"`
	Orphans    []string         `json:"orphans"`
	Cleanup    []CleanupOutcome `json:"cleanup,omitempty"`
}

// Sweep finds blobs older than grace that the document does not reference and,
// unless dryRun is set, deletes them.
func (s *Service) Sweep(ctx context.Context, dryRun bool, grace time.Duration) (SweepReport, error) {
	if err := authorize(ctx); err != nil {
		return SweepReport{}, err
	}
	rep := SweepReport{DryRun: dryRun, Orphans: []string{}}
	if s.blobs == nil {
		return rep, nil
	}

	// The lock is held through the deletes so no mutation can reference a
	// blob between the listing and its removal.
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.repo.Load(ctx)
	if err != nil {
		return rep, err
	}
	inUse, err := documentStrings(doc)
	if err != nil {
		return rep, err
	}
	stored, err := s.blobs.List(ctx)
	if err != nil {
		return rep, err
	}

	for ref := range inUse {
		if s.blobs.Owns(ref) {
			rep.Referenced++
		}
	}
	rep.Scanned = len(stored)
	cutoff := s.now().Add(-grace)
	for _, ref := range stored {
		if inUse[ref] {
			continue
		}
		if at, ok := uploadedAt(ref); ok && at.After(cutoff) {
			continue
		}
		rep.Orphans = append(rep.Orphans, ref)
	}
	logger.Infof("sweep: scanned=%d referenced=%d orphans=%d dryRun=%v", rep.Scanned, rep.Referenced, len(rep.Orphans), dryRun)
	if !dryRun {
		rep.Cleanup = s.cleanup(ctx, rep.Orphans)
	}
	return rep, nil
}

// documentStrings collects every string value in the document whatever its
// key, so a blob kept under a field the image walk does not know still counts
// as referenced.
func documentStrings(doc content.Document) (map[string]bool, error) {
	out := map[string]bool{}
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if t != "" {
				out[t] = true
			}
		case map[string]any:
			for _, e := range t {
				walk(e)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	for _, raw := range doc {
		var v any
		if err := content.Decode(raw, &v); err != nil {
			return nil, err
		}
		walk(v)
	}
	return out, nil
}

// uploadedAt reads the unix-millisecond prefix stored names carry.
func uploadedAt(ref string) (time.Time, bool) {
	name := path.Base(ref)
	i := strings.IndexByte(name, '-')
	if i <= 0 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(name[:i], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
