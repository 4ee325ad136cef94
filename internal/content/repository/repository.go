package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/researchlab/labsite/internal/content"
)

// Repository loads and saves the whole content document. Implementations do not
// lock; callers serialize read-modify-write cycles.
type Repository interface {
	Load(ctx context.Context) (content.Document, error)
	Save(ctx context.Context, doc content.Document) error
}

// parse decodes a stored document. Anything that is not a JSON object is corrupt.
func parse(raw []byte) (content.Document, error) {
	var doc content.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", content.ErrCorrupt, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: top-level value is not an object", content.ErrCorrupt)
	}
	return doc, nil
}

// render pretty-prints the document with two-space indentation.
func render(doc content.Document) ([]byte, error) {
	if doc == nil {
		doc = content.Document{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(b, '\n'), nil
}
