package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repo persists deferred actions. Status mutations are conditional: they
// only apply while the row is still pending, and report whether they did.
// That makes concurrent or repeated run-due passes safe.
type Repo interface {
	Schedule(ctx context.Context, a Action) error
	DuePending(ctx context.Context, now time.Time) ([]Action, error)
	MarkSent(ctx context.Context, id uuid.UUID, attempts int) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (Action, bool, error)
}

type memoryRepo struct {
	mu      sync.Mutex
	actions map[uuid.UUID]Action
}

// NewMemoryRepo constructs an in-memory Repo implementation for tests and
// development.
func NewMemoryRepo() Repo {
	return &memoryRepo{actions: make(map[uuid.UUID]Action)}
}

func (r *memoryRepo) Schedule(ctx context.Context, a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[a.ID] = a
	return nil
}

func (r *memoryRepo) DuePending(ctx context.Context, now time.Time) ([]Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Action
	for _, a := range r.actions {
		if a.Status == StatusPending && !a.NotBefore.After(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}

func (r *memoryRepo) MarkSent(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	return r.transition(id, StatusSent, attempts), nil
}

func (r *memoryRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	return r.transition(id, StatusFailed, attempts), nil
}

func (r *memoryRepo) transition(id uuid.UUID, to Status, attempts int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok || a.Status != StatusPending {
		return false
	}
	a.Status = to
	a.Attempts = attempts
	r.actions[id] = a
	return true
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Action, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	return a, ok, nil
}
