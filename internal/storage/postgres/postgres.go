// Package postgres stores entries in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/enrich/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ storage.Backend = (*postgresBackend)(nil)

// DB is the subset of *pgxpool.Pool the backend uses. pgxmock pools satisfy
// it as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type postgresBackend struct {
	db DB
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
	consulted JSONB NOT NULL,
	fallback_used BOOLEAN NOT NULL,
	state TEXT NOT NULL,
	resolved BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS product_entries_ean ON product_entries (ean);
`

// New connects to dsn, verifies the connection and applies the schema.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return NewWithDB(ctx, pool)
}

// NewWithDB applies the schema on an existing connection pool.
func NewWithDB(ctx context.Context, db DB) (storage.Backend, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return &postgresBackend{db: db}, nil
}

func (b *postgresBackend) Save(ctx context.Context, e *storage.Entry) error {
	consulted, err := json.Marshal(e.Consulted)
	if err != nil {
		return fmt.Errorf("postgres: marshal consulted: %w", err)
	}

	query := `
	INSERT INTO product_entries (
		id, ean, title, link, ingredients, effects, packaging, description,
		description_html, consulted, fallback_used, state, resolved, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	r := e.Record
	_, err = b.db.Exec(ctx, query,
		e.ID, r.EAN, r.Title, r.Link, r.Ingredients, r.Effects, r.Packaging, r.Description,
		e.DescriptionHTML, consulted, e.FallbackUsed, e.State, r.Resolved(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT id, ean, title, link, ingredients, effects, packaging, description,
		description_html, consulted, fallback_used, state, created_at
		FROM product_entries WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.EAN != "" {
		query += fmt.Sprintf(` AND ean = $%d`, paramCount)
		args = append(args, filter.EAN)
		paramCount++
	}
	if filter.Resolved != nil {
		query += fmt.Sprintf(` AND resolved = $%d`, paramCount)
		args = append(args, *filter.Resolved)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	results := []*storage.Entry{}
	for rows.Next() {
		var e storage.Entry
		var consulted []byte
		r := &e.Record

		err := rows.Scan(
			&e.ID, &r.EAN, &r.Title, &r.Link, &r.Ingredients, &r.Effects, &r.Packaging, &r.Description,
			&e.DescriptionHTML, &consulted, &e.FallbackUsed, &e.State, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		if err := json.Unmarshal(consulted, &e.Consulted); err != nil {
			return nil, fmt.Errorf("postgres: decode consulted: %w", err)
		}

		results = append(results, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.db.Close()
	return nil
}
