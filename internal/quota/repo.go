package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

type sqlRepo struct {
	db *sqlx.DB
}

// NewSQLRepo constructs a Repo backed by the quota_counters table.
func NewSQLRepo(db *sqlx.DB) Repo {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) Count(ctx context.Context, userID int64, kind, anchor string) (int, error) {
	var row struct {
		Count  int    `db:"count"`
		Anchor string `db:"period_anchor"`
	}
	q := r.db.Rebind(`SELECT count, period_anchor FROM quota_counters
		WHERE user_id = ? AND kind = ?`)
	err := r.db.GetContext(ctx, &row, q, userID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota %s: %w", kind, err)
	}
	// A stale anchor means the period rolled over; the row is rewritten on
	// the next increment, not here.
	if row.Anchor != anchor {
		return 0, nil
	}
	return row.Count, nil
}

func (r *sqlRepo) Increment(ctx context.Context, userID int64, kind, anchor string) (int, error) {
	var n int
	q := r.db.Rebind(`INSERT INTO quota_counters (user_id, kind, count, period_anchor)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, kind) DO UPDATE SET
			count = CASE WHEN quota_counters.period_anchor = excluded.period_anchor
				THEN quota_counters.count + 1 ELSE 1 END,
			period_anchor = excluded.period_anchor
		RETURNING count`)
	if err := r.db.GetContext(ctx, &n, q, userID, kind, anchor); err != nil {
		return 0, fmt.Errorf("increment quota %s: %w", kind, err)
	}
	return n, nil
}

func (r *sqlRepo) Clear(ctx context.Context, userID int64, kind string) error {
	q := r.db.Rebind(`DELETE FROM quota_counters WHERE user_id = ? AND kind = ?`)
	if _, err := r.db.ExecContext(ctx, q, userID, kind); err != nil {
		return fmt.Errorf("clear quota %s: %w", kind, err)
	}
	return nil
}

type memoryRepo struct {
	mu       sync.Mutex
	counters map[counterKey]counter
}

type counterKey struct {
	userID int64
	kind   string
}

type counter struct {
	count  int
	anchor string
}

// NewMemoryRepo constructs an in-memory Repo implementation for tests and
// development.
func NewMemoryRepo() Repo {
	return &memoryRepo{counters: make(map[counterKey]counter)}
}

func (r *memoryRepo) Count(ctx context.Context, userID int64, kind, anchor string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[counterKey{userID, kind}]
	if !ok || c.anchor != anchor {
		return 0, nil
	}
	return c.count, nil
}

func (r *memoryRepo) Increment(ctx context.Context, userID int64, kind, anchor string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := counterKey{userID, kind}
	c, ok := r.counters[key]
	if !ok || c.anchor != anchor {
		c = counter{anchor: anchor}
	}
	c.count++
	r.counters[key] = c
	return c.count, nil
}

func (r *memoryRepo) Clear(ctx context.Context, userID int64, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counters, counterKey{userID, kind})
	return nil
}
