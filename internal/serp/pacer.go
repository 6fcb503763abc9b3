package serp

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pacer serializes calls to one search engine. A call keeps its slot until
// pause has elapsed after it returned, so consecutive calls are spaced by at
// least pause however many goroutines share the Pacer.
type Pacer struct {
	sem   *semaphore.Weighted
	pause time.Duration
}

// NewPacer returns a Pacer. A non-positive pause disables pacing.
func NewPacer(pause time.Duration) *Pacer {
	return &Pacer{sem: semaphore.NewWeighted(1), pause: pause}
}

// Do runs fn once the slot is free. It returns ctx.Err() without running fn
// when ctx ends first.
func (p *Pacer) Do(ctx context.Context, fn func()) error {
	if p == nil || p.pause <= 0 {
		fn()
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	fn()
	time.AfterFunc(p.pause, func() { p.sem.Release(1) })
	return nil
}
