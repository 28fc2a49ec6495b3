package gen

import (
	"context"
	"sync"
)

// Enricher runs at most one background job per user, used for slow
// generation work whose result only updates a secondary message after a
// quick placeholder was already shown. Starting a new job, cancelling the
// user's flow or shutting down cancels the job's context; the job itself
// must check session staleness before applying its result.
type Enricher struct {
	mu   sync.Mutex
	jobs map[int64]*jobHandle
	wg   sync.WaitGroup
}

type jobHandle struct {
	cancel context.CancelFunc
}

// NewEnricher constructs an empty Enricher.
func NewEnricher() *Enricher {
	return &Enricher{jobs: make(map[int64]*jobHandle)}
}

// Go starts job in the background, replacing any job already running for
// the user.
func (e *Enricher) Go(userID int64, job func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &jobHandle{cancel: cancel}

	e.mu.Lock()
	if prev, ok := e.jobs[userID]; ok {
		prev.cancel()
	}
	e.jobs[userID] = h
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			if e.jobs[userID] == h {
				delete(e.jobs, userID)
			}
			e.mu.Unlock()
			cancel()
		}()
		job(ctx)
	}()
}

// Cancel stops the user's background job, if any. Safe to call when none
// is running.
func (e *Enricher) Cancel(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.jobs[userID]; ok {
		h.cancel()
		delete(e.jobs, userID)
	}
}

// Shutdown cancels every job and waits for them to return.
func (e *Enricher) Shutdown() {
	e.mu.Lock()
	for userID, h := range e.jobs {
		h.cancel()
		delete(e.jobs, userID)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
