package sched

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type sqlRepo struct {
	db *sqlx.DB
}

// NewSQLRepo constructs a Repo backed by the deferred_actions table.
func NewSQLRepo(db *sqlx.DB) Repo {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) Schedule(ctx context.Context, a Action) error {
	q := r.db.Rebind(`INSERT INTO deferred_actions
		(id, owner_id, kind, payload, not_before, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		a.ID.String(), a.OwnerID, string(a.Kind), []byte(a.Payload),
		a.NotBefore.UTC(), string(a.Status), a.Attempts, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("schedule action: %w", err)
	}
	return nil
}

type actionRow struct {
	ID        string    `db:"id"`
	OwnerID   int64     `db:"owner_id"`
	Kind      string    `db:"kind"`
	Payload   []byte    `db:"payload"`
	NotBefore time.Time `db:"not_before"`
	Status    string    `db:"status"`
	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}

func (row actionRow) toAction() (Action, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return Action{}, fmt.Errorf("parse action id %q: %w", row.ID, err)
	}
	return Action{
		ID:        id,
		OwnerID:   row.OwnerID,
		Kind:      Kind(row.Kind),
		Payload:   row.Payload,
		NotBefore: row.NotBefore,
		Status:    Status(row.Status),
		Attempts:  row.Attempts,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *sqlRepo) DuePending(ctx context.Context, now time.Time) ([]Action, error) {
	var rows []actionRow
	q := r.db.Rebind(`SELECT id, owner_id, kind, payload, not_before, status, attempts, created_at
		FROM deferred_actions
		WHERE status = 'pending' AND not_before <= ?
		ORDER BY created_at`)
	if err := r.db.SelectContext(ctx, &rows, q, now.UTC()); err != nil {
		return nil, fmt.Errorf("list due actions: %w", err)
	}
	out := make([]Action, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAction()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *sqlRepo) MarkSent(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	return r.transition(ctx, id, StatusSent, attempts)
}

func (r *sqlRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	return r.transition(ctx, id, StatusFailed, attempts)
}

func (r *sqlRepo) transition(ctx context.Context, id uuid.UUID, to Status, attempts int) (bool, error) {
	q := r.db.Rebind(`UPDATE deferred_actions
		SET status = ?, attempts = ?
		WHERE id = ? AND status = 'pending'`)
	res, err := r.db.ExecContext(ctx, q, string(to), attempts, id.String())
	if err != nil {
		return false, fmt.Errorf("mark action %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sqlRepo) Get(ctx context.Context, id uuid.UUID) (Action, bool, error) {
	var row actionRow
	q := r.db.Rebind(`SELECT id, owner_id, kind, payload, not_before, status, attempts, created_at
		FROM deferred_actions WHERE id = ?`)
	err := r.db.GetContext(ctx, &row, q, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, fmt.Errorf("load action: %w", err)
	}
	a, err := row.toAction()
	if err != nil {
		return Action{}, false, err
	}
	return a, true, nil
}
