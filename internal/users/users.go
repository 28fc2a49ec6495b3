package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repo tracks every user who ever talked to the bot, mainly so broadcasts
// have a recipient set.
type Repo interface {
	Upsert(ctx context.Context, userID int64, username string) error
	IDs(ctx context.Context) ([]int64, error)
}

type sqlRepo struct {
	db *sqlx.DB
}

// NewSQLRepo constructs a Repo backed by the users table.
func NewSQLRepo(db *sqlx.DB) Repo {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) Upsert(ctx context.Context, userID int64, username string) error {
	q := r.db.Rebind(`INSERT INTO users (id, username, last_seen_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			last_seen_at = excluded.last_seen_at`)
	if _, err := r.db.ExecContext(ctx, q, userID, username, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert user %d: %w", userID, err)
	}
	return nil
}

func (r *sqlRepo) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

type memoryRepo struct {
	mu    sync.Mutex
	users map[int64]string
}

// NewMemoryRepo constructs an in-memory Repo implementation for tests and
// development.
func NewMemoryRepo() Repo {
	return &memoryRepo{users: make(map[int64]string)}
}

func (r *memoryRepo) Upsert(ctx context.Context, userID int64, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = username
	return nil
}

func (r *memoryRepo) IDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
