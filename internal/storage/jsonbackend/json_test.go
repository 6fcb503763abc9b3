package jsonbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "enrich.jsonl")

	b, err := New(filePath)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	e1 := &storage.Entry{
		ID:        "json1",
		Record:    product.Record{EAN: "5999885051011", Title: "Chia mag", Ingredients: "chia", Description: "magvak"},
		Consulted: []string{"site:www.termeszetes.com"},
		State:     "resolved",
		CreatedAt: now.Add(-2 * time.Hour),
	}
	e2 := &storage.Entry{
		ID:           "json2",
		Record:       product.Record{EAN: "0000000000000"},
		Consulted:    []string{"site:www.termeszetes.com", "google:bionaturorganikus.hu"},
		FallbackUsed: true,
		State:        "failed",
		CreatedAt:    now.Add(-1 * time.Hour),
	}

	require.NoError(t, b.Save(ctx, e1))
	require.NoError(t, b.Save(ctx, e2))

	byEAN, err := b.Query(ctx, storage.Filter{EAN: "0000000000000"})
	require.NoError(t, err)
	require.Len(t, byEAN, 1)
	assert.Equal(t, e2, byEAN[0])

	resolved := true
	res, err := b.Query(ctx, storage.Filter{Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "json1", res[0].ID)

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "json2", since[0].ID)

	all, err := b.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "json2", all[0].ID, "newest first")

	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	offset, err := b.Query(ctx, storage.Filter{Offset: 1})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "json1", offset[0].ID)

	// Saving after a query must still append.
	require.NoError(t, b.Save(ctx, &storage.Entry{ID: "json3", CreatedAt: now}))
	all, err = b.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJSONBackend_Reopen(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "enrich.jsonl")
	ctx := context.Background()

	b, err := New(filePath)
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx, storage.NewEntry(product.Record{EAN: "1"})))
	require.NoError(t, b.Close())

	b, err = New(filePath)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Save(ctx, storage.NewEntry(product.Record{EAN: "2"})))

	all, err := b.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].Record.EAN)
}
