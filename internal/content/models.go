package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// Document is the whole site content keyed by section name. Section values stay
// raw until an operation needs to look inside them, so untouched sections are
// written back byte-for-byte.
type Document map[string]json.RawMessage

// Record is one entry of a collection section. Field values keep the shapes
// produced by encoding/json with UseNumber (string, json.Number, bool, nil,
// []any, map[string]any).
type Record map[string]any

var (
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	sectionPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)
)

// ValidID reports whether id can address a record.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// ValidSection reports whether name can be used as a section key.
func ValidSection(name string) bool { return sectionPattern.MatchString(name) }

// NewID returns a record id made of the unix-millisecond timestamp followed by a
// random three digit suffix. Uniqueness is probabilistic.
func NewID(now time.Time) string {
	return fmt.Sprintf("%d%d", now.UnixMilli(), 100+rand.IntN(900))
}

// ID returns the record id as a string. Legacy documents may carry numeric ids.
func (r Record) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

// Merge returns a shallow copy of r with every field of patch applied on top.
// The id of r is kept even when patch carries one.
func (r Record) Merge(patch Record) Record {
	out := make(Record, len(r)+len(patch))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	if id, ok := r["id"]; ok {
		out["id"] = id
	}
	return out
}

// Decode unmarshals raw JSON keeping numbers as json.Number.
func Decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// DecodeRecords decodes a collection section. A section that is not a JSON array
// fails with ErrInvalidShape.
func DecodeRecords(raw json.RawMessage) ([]Record, error) {
	if !isArray(raw) {
		return nil, ErrInvalidShape
	}
	var recs []Record
	if err := Decode(raw, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return recs, nil
}

// DecodeObject decodes a singleton section or a request payload.
func DecodeObject(raw []byte) (Record, error) {
	if !isObject(raw) {
		return nil, ErrInvalidShape
	}
	var rec Record
	if err := Decode(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return rec, nil
}

// Encode marshals a section value for storage inside a Document.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func isArray(raw []byte) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '['
}

func isObject(raw []byte) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}
