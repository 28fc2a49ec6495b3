package subs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

type sqlRepo struct {
	db *sqlx.DB
}

// NewSQLRepo constructs a Repo backed by the subscriptions table.
func NewSQLRepo(db *sqlx.DB) Repo {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) ExpiresAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	var at time.Time
	q := r.db.Rebind(`SELECT expires_at FROM subscriptions WHERE user_id = ?`)
	err := r.db.GetContext(ctx, &at, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read subscription: %w", err)
	}
	return at, true, nil
}

func (r *sqlRepo) SetExpiresAt(ctx context.Context, userID int64, at time.Time) error {
	q := r.db.Rebind(`INSERT INTO subscriptions (user_id, expires_at) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = excluded.expires_at`)
	if _, err := r.db.ExecContext(ctx, q, userID, at.UTC()); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

type memoryRepo struct {
	mu      sync.Mutex
	expires map[int64]time.Time
}

// NewMemoryRepo constructs an in-memory Repo implementation for tests and
// development.
func NewMemoryRepo() Repo {
	return &memoryRepo{expires: make(map[int64]time.Time)}
}

func (r *memoryRepo) ExpiresAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.expires[userID]
	return at, ok, nil
}

func (r *memoryRepo) SetExpiresAt(ctx context.Context, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[userID] = at
	return nil
}
