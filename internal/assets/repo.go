package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
)

type sqlRepo struct {
	db *sqlx.DB
}

// NewSQLRepo constructs a Repo backed by the assets table.
func NewSQLRepo(db *sqlx.DB) Repo {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) List(ctx context.Context, kind Kind) ([]Asset, error) {
	var out []Asset
	q := r.db.Rebind(`SELECT id, kind, name, value FROM assets WHERE kind = ? ORDER BY id`)
	if err := r.db.SelectContext(ctx, &out, q, string(kind)); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

func (r *sqlRepo) Get(ctx context.Context, id int64) (Asset, bool, error) {
	var a Asset
	q := r.db.Rebind(`SELECT id, kind, name, value FROM assets WHERE id = ?`)
	err := r.db.GetContext(ctx, &a, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, fmt.Errorf("get asset %d: %w", id, err)
	}
	return a, true, nil
}

func (r *sqlRepo) Add(ctx context.Context, a Asset) (int64, error) {
	var id int64
	// Self-numbering insert keeps the DDL identical across backends. Asset
	// writes come from a single admin session, so the max+1 race is moot.
	q := r.db.Rebind(`INSERT INTO assets (id, kind, name, value)
		SELECT COALESCE(MAX(id), 0) + 1, ?, ?, ? FROM assets
		RETURNING id`)
	if err := r.db.GetContext(ctx, &id, q, string(a.Kind), a.Name, a.Value); err != nil {
		return 0, fmt.Errorf("add asset: %w", err)
	}
	return id, nil
}

func (r *sqlRepo) Remove(ctx context.Context, id int64) error {
	q := r.db.Rebind(`DELETE FROM assets WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("remove asset %d: %w", id, err)
	}
	return nil
}

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	assets map[int64]Asset
}

// NewMemoryRepo constructs an in-memory Repo implementation for tests and
// development.
func NewMemoryRepo() Repo {
	return &memoryRepo{assets: make(map[int64]Asset)}
}

func (r *memoryRepo) List(ctx context.Context, kind Kind) ([]Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.assets {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Asset, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	return a, ok, nil
}

func (r *memoryRepo) Add(ctx context.Context, a Asset) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	r.assets[a.ID] = a
	return a.ID, nil
}

func (r *memoryRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, id)
	return nil
}
