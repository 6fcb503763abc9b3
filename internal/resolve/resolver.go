// Package resolve turns one catalog identifier into one enriched record by
// consulting sources in priority order and topping up the record from each.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/enrich/internal/metrics"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/serp"
)

// Extractor reads attributes off a candidate's page.
type Extractor interface {
	Extract(ctx context.Context, link string) product.Partial
}

// Step is one configured source together with the identifier part it is
// queried with and its result cap.
type Step struct {
	Source serp.Source
	Key    serp.Key
	Limit  int
}

// Config wires a Resolver.
type Config struct {
	// Primary lists alternatives; only the first whose key is available for
	// the identifier is consulted.
	Primary []Step
	// Fallbacks are consulted in order for as long as NeedsFallback holds.
	Fallbacks []Step
	Extractor Extractor
	Logger    *slog.Logger
}

// State classifies a finished record.
type State string

const (
	// StateResolved means description and ingredients were both found.
	StateResolved State = "resolved"
	// StatePartial means something was found but the fallback trigger still holds.
	StatePartial State = "partial"
	// StateFailed means nothing beyond the EAN was found.
	StateFailed State = "failed"
)

// Outcome describes how a record was produced. It is bookkeeping for logs,
// metrics and summaries and never part of the record itself.
type Outcome struct {
	EAN string `json:"ean"`
	// Consulted lists source names in the order they were queried.
	Consulted []string `json:"consulted"`
	// Contributions maps a source name to the fields it filled.
	Contributions map[string][]product.Field `json:"contributions,omitempty"`
	FallbackUsed  bool                       `json:"fallback_used"`
	State         State                      `json:"state"`
	Duration      time.Duration              `json:"duration"`
}

// Failed reports whether nothing was found.
func (o Outcome) Failed() bool { return o.State == StateFailed }

// Resolver runs the source sequence for one identifier at a time. It holds
// no per-identifier state and is safe for concurrent use when its sources
// and extractor are.
type Resolver struct {
	primary   []Step
	fallbacks []Step
	extractor Extractor
	logger    *slog.Logger
}

// New validates cfg and returns a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("resolve: extractor is required")
	}
	if len(cfg.Primary) == 0 && len(cfg.Fallbacks) == 0 {
		return nil, errors.New("resolve: at least one source is required")
	}
	for _, s := range append(append([]Step(nil), cfg.Primary...), cfg.Fallbacks...) {
		if s.Source == nil {
			return nil, errors.New("resolve: step without source")
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		primary:   cfg.Primary,
		fallbacks: cfg.Fallbacks,
		extractor: cfg.Extractor,
		logger:    logger,
	}, nil
}

// NeedsFallback is the fallback trigger: a missing description or missing
// ingredients is enough.
func NeedsFallback(r product.Record) bool {
	return r.Description == "" || r.Ingredients == ""
}

// Resolve builds the record for id. Source and extraction failures only
// leave fields empty; Resolve itself never fails.
func (r *Resolver) Resolve(ctx context.Context, id product.Identifier) (product.Record, Outcome) {
	start := time.Now()
	rec := product.NewRecord(id)
	out := Outcome{EAN: id.EAN}
	logger := r.logger.With("ean", id.EAN)

	if !product.ValidEAN(id.EAN) {
		logger.Warn("identifier fails GTIN checksum, looking it up anyway")
	}

	for _, step := range r.primary {
		key, ok := step.Key.For(id)
		if !ok {
			continue
		}
		r.consult(ctx, logger, step, key, &rec, &out)
		break
	}

	for _, step := range r.fallbacks {
		if !NeedsFallback(rec) || ctx.Err() != nil {
			break
		}
		key, ok := step.Key.For(id)
		if !ok {
			continue
		}
		out.FallbackUsed = true
		r.consult(ctx, logger, step, key, &rec, &out)
	}

	switch {
	case !rec.Resolved():
		out.State = StateFailed
		logger.Warn("no data found for identifier", "name", id.Name, "consulted", out.Consulted)
	case NeedsFallback(rec):
		out.State = StatePartial
	default:
		out.State = StateResolved
	}
	out.Duration = time.Since(start)
	metrics.RecordResolution(string(out.State), out.FallbackUsed)
	return rec, out
}

// consult queries one source and tops the record up from its first
// candidate only.
func (r *Resolver) consult(ctx context.Context, logger *slog.Logger, step Step, key string, rec *product.Record, out *Outcome) {
	if ctx.Err() != nil {
		return
	}
	name := step.Source.Name()
	out.Consulted = append(out.Consulted, name)

	candidates := step.Source.Query(ctx, key, step.Limit)
	metrics.RecordQuery(name, len(candidates))
	if len(candidates) == 0 {
		logger.Debug("source returned no candidates", "source", name, "key", key)
		return
	}

	c := candidates[0]
	if !c.Usable() {
		logger.Debug("first candidate unusable", "source", name, "title", c.Title, "link", c.Link)
		return
	}

	filled := rec.TopUpCandidate(c)
	var p product.Partial
	if c.Details != nil {
		p = *c.Details
	} else {
		p = r.extractor.Extract(ctx, c.Link)
	}
	filled = append(filled, rec.TopUpPartial(p)...)

	if len(filled) == 0 {
		return
	}
	if out.Contributions == nil {
		out.Contributions = make(map[string][]product.Field)
	}
	out.Contributions[name] = append(out.Contributions[name], filled...)

	fields := make([]string, len(filled))
	for i, f := range filled {
		fields[i] = string(f)
	}
	metrics.RecordContribution(name, fields...)
	logger.Info("source contributed", "source", name, "link", c.Link, "fields", fields)
}
