package content

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSectionNotFound = errors.New("section not found")
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidShape    = errors.New("invalid section shape")
	ErrInvalidID       = errors.New("invalid record id")
	ErrInvalidSection  = errors.New("invalid section name")
	ErrCorrupt         = errors.New("content document is corrupt")
)
