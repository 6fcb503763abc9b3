// Package pipeline drives a resolver over a whole catalog and hands the
// finished records to the output stores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/resolve"
	"github.com/FranksOps/enrich/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Resolver produces one record per identifier and never fails.
type Resolver interface {
	Resolve(ctx context.Context, id product.Identifier) (product.Record, resolve.Outcome)
}

// Renderer produces the HTML description of a record.
type Renderer interface {
	Render(rec product.Record) (string, error)
}

// Pipeline resolves identifiers in input order.
type Pipeline struct {
	Resolver Resolver
	// Renderer fills Entry.DescriptionHTML when set.
	Renderer Renderer
	// Stores receive every entry once the batch is complete, in input order.
	Stores []storage.Backend
	// Concurrency > 1 resolves that many identifiers at once. Output order is
	// unaffected.
	Concurrency int
	Logger      *slog.Logger
}

// Result is the outcome of a Run. Records and Outcomes are index-aligned
// with the input.
type Result struct {
	Records   []product.Record
	Outcomes  []resolve.Outcome
	StartTime time.Time
	EndTime   time.Time
}

// Run resolves every identifier. A failed identifier yields an all-empty
// record and never stops the batch. The returned error is non-nil only when
// ctx is cancelled before all identifiers were attempted or when writing to
// a store fails; in the latter case the Result is still complete.
func (p *Pipeline) Run(ctx context.Context, ids []product.Identifier) (*Result, error) {
	if p.Resolver == nil {
		return nil, errors.New("pipeline: resolver is nil")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := &Result{
		Records:   make([]product.Record, len(ids)),
		Outcomes:  make([]resolve.Outcome, len(ids)),
		StartTime: time.Now(),
	}

	limit := p.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	total := len(ids)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logger.Info("processing", "ean", id.EAN, "name", id.Name, "index", i+1, "total", total)
			rec, out := p.Resolver.Resolve(gctx, id)
			res.Records[i] = rec
			res.Outcomes[i] = out
			return nil
		})
	}
	runErr := g.Wait()
	res.EndTime = time.Now()

	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		return res, fmt.Errorf("pipeline: run: %w", runErr)
	}

	if err := p.store(ctx, logger, res); err != nil {
		return res, err
	}

	logger.Info("batch complete", "total", total, "duration", res.EndTime.Sub(res.StartTime))
	return res, nil
}

func (p *Pipeline) store(ctx context.Context, logger *slog.Logger, res *Result) error {
	if len(p.Stores) == 0 {
		return nil
	}

	var errs []error
	for i, rec := range res.Records {
		e := storage.NewEntry(rec)
		out := res.Outcomes[i]
		e.Consulted = out.Consulted
		e.FallbackUsed = out.FallbackUsed
		e.State = string(out.State)

		if p.Renderer != nil {
			html, err := p.Renderer.Render(rec)
			if err != nil {
				logger.Warn("render failed", "ean", rec.EAN, "err", err)
			}
			e.DescriptionHTML = html
		}

		for _, s := range p.Stores {
			if err := s.Save(ctx, e); err != nil {
				errs = append(errs, fmt.Errorf("pipeline: save %q: %w", rec.EAN, err))
			}
		}
	}
	return errors.Join(errs...)
}
