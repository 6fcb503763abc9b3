// Package sqlite stores entries in a SQLite database through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/enrich/internal/storage"
	_ "modernc.org/sqlite"
)

var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS product_entries (
	id TEXT PRIMARY KEY,
	ean TEXT NOT NULL,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	ingredients TEXT NOT NULL,
	effects TEXT NOT NULL,
	packaging TEXT NOT NULL,
	description TEXT NOT NULL,
	description_html TEXT NOT NULL,
	consulted TEXT NOT NULL,
	fallback_used BOOLEAN NOT NULL,
	state TEXT NOT NULL,
	resolved BOOLEAN NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS product_entries_ean ON product_entries (ean);
`

// New opens the database at dsn and applies the schema.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, e *storage.Entry) error {
	consulted, err := json.Marshal(e.Consulted)
	if err != nil {
		return fmt.Errorf("sqlite: marshal consulted: %w", err)
	}

	query := `
	INSERT INTO product_entries (
		id, ean, title, link, ingredients, effects, packaging, description,
		description_html, consulted, fallback_used, state, resolved, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	r := e.Record
	_, err = b.db.ExecContext(ctx, query,
		e.ID, r.EAN, r.Title, r.Link, r.Ingredients, r.Effects, r.Packaging, r.Description,
		e.DescriptionHTML, string(consulted), e.FallbackUsed, e.State, r.Resolved(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT id, ean, title, link, ingredients, effects, packaging, description,
		description_html, consulted, fallback_used, state, created_at
		FROM product_entries WHERE 1=1`
	args := []any{}

	if filter.EAN != "" {
		query += ` AND ean = ?`
		args = append(args, filter.EAN)
	}
	if filter.Resolved != nil {
		query += ` AND resolved = ?`
		args = append(args, *filter.Resolved)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC, rowid DESC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	results := []*storage.Entry{}
	for rows.Next() {
		var e storage.Entry
		var consulted string
		r := &e.Record

		err := rows.Scan(
			&e.ID, &r.EAN, &r.Title, &r.Link, &r.Ingredients, &r.Effects, &r.Packaging, &r.Description,
			&e.DescriptionHTML, &consulted, &e.FallbackUsed, &e.State, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(consulted), &e.Consulted); err != nil {
			return nil, fmt.Errorf("sqlite: decode consulted: %w", err)
		}

		results = append(results, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
