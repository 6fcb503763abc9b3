// Package storage persists enriched records. Backends live in the
// sub-packages and are selected by DSN scheme in the CLI.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/google/uuid"
)

// ErrUnsupportedFilter is returned by backends that cannot evaluate part of
// a Filter.
var ErrUnsupportedFilter = errors.New("storage: filter not supported by backend")

// Entry is one persisted resolution.
type Entry struct {
	ID              string         `json:"id"`
	Record          product.Record `json:"record"`
	DescriptionHTML string         `json:"description_html,omitempty"`
	Consulted       []string       `json:"consulted,omitempty"`
	FallbackUsed    bool           `json:"fallback_used"`
	State           string         `json:"state"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewEntry wraps rec with a fresh ID and timestamp.
func NewEntry(rec product.Record) *Entry {
	return &Entry{
		ID:        uuid.New().String(),
		Record:    rec,
		CreatedAt: time.Now().UTC(),
	}
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	EAN      string
	Resolved *bool
	Since    *time.Time
	Limit    int
	Offset   int
}

// Match reports whether e passes the EAN, Resolved and Since conditions.
func (f Filter) Match(e *Entry) bool {
	if f.EAN != "" && e.Record.EAN != f.EAN {
		return false
	}
	if f.Resolved != nil && e.Record.Resolved() != *f.Resolved {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page orders entries stored oldest-first as newest-first and applies
// Offset and Limit. File backends use it after filtering.
func (f Filter) Page(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Entry{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// Backend stores entries and queries them newest first.
type Backend interface {
	Save(ctx context.Context, e *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
	Close() error
}
