// Package csvbackend writes the tabular output artifacts: the raw table and,
// with Options.HTML, the same columns plus the rendered description.
package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/storage"
)

// ColumnDescriptionHTML is the extra column written when Options.HTML is set.
const ColumnDescriptionHTML = "DescriptionHTML"

var _ storage.Backend = (*csvBackend)(nil)

// Options controls the table layout.
type Options struct {
	// HTML appends the DescriptionHTML column.
	HTML bool
	// Truncate discards existing content instead of appending to it.
	Truncate bool
}

type csvBackend struct {
	mu      sync.Mutex
	file    *os.File
	headers []string
}

// Headers returns the header row for the given layout.
func Headers(opts Options) []string {
	h := slices.Clone(product.Columns)
	if opts.HTML {
		h = append(h, ColumnDescriptionHTML)
	}
	return h
}

// New opens a CSV table, creating it and writing the header row when the file
// is empty.
func New(filePath string, opts Options) (storage.Backend, error) {
	flags := os.O_APPEND | os.O_CREATE | os.O_RDWR
	if opts.Truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(filePath, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}

	headers := Headers(opts)
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{file: f, headers: headers}, nil
}

func (b *csvBackend) Save(ctx context.Context, e *storage.Entry) error {
	row := e.Record.Values()
	if len(b.headers) > len(product.Columns) {
		row = append(row, e.DescriptionHTML)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	return nil
}

// Query reads the table back. Rows carry no timestamp, so a Since filter is
// rejected with storage.ErrUnsupportedFilter.
func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	if filter.Since != nil {
		return nil, fmt.Errorf("csvbackend: since: %w", storage.ErrUnsupportedFilter)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Entry{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.Entry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read: %w", err)
		}
		if len(row) != len(b.headers) {
			continue
		}

		e := &storage.Entry{Record: product.RecordFromValues(row)}
		if len(row) > len(product.Columns) {
			e.DescriptionHTML = row[len(product.Columns)]
		}
		if filter.Match(e) {
			matched = append(matched, e)
		}
	}

	return filter.Page(matched), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
