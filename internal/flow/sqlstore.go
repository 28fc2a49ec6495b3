package flow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type sqlStore struct {
	db *sqlx.DB
}

// NewSQLStore constructs a Store backed by the flow_sessions table. Stack
// and attributes are stored as JSON so flows remain free to define their
// own attribute vocabulary.
func NewSQLStore(db *sqlx.DB) Store {
	return &sqlStore{db: db}
}

type sessionRow struct {
	UserID     int64     `db:"user_id"`
	Flow       string    `db:"flow"`
	State      string    `db:"state"`
	Stack      []byte    `db:"stack"`
	Attrs      []byte    `db:"attrs"`
	Generation int64     `db:"generation"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (s *sqlStore) Get(ctx context.Context, userID int64, flow string) (*Session, bool, error) {
	var row sessionRow
	q := s.db.Rebind(`SELECT user_id, flow, state, stack, attrs, generation, updated_at
		FROM flow_sessions WHERE user_id = ? AND flow = ?`)
	err := s.db.GetContext(ctx, &row, q, userID, flow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	sess := &Session{
		UserID:     row.UserID,
		Flow:       row.Flow,
		State:      State(row.State),
		Generation: row.Generation,
		UpdatedAt:  row.UpdatedAt,
		Attrs:      make(map[string]any),
	}
	if len(row.Stack) > 0 {
		if err := json.Unmarshal(row.Stack, &sess.Stack); err != nil {
			return nil, false, fmt.Errorf("decode session stack: %w", err)
		}
	}
	if len(row.Attrs) > 0 {
		if err := json.Unmarshal(row.Attrs, &sess.Attrs); err != nil {
			return nil, false, fmt.Errorf("decode session attrs: %w", err)
		}
	}
	return sess, true, nil
}

func (s *sqlStore) Put(ctx context.Context, sess *Session) error {
	stack, err := json.Marshal(sess.Stack)
	if err != nil {
		return fmt.Errorf("encode session stack: %w", err)
	}
	attrs, err := json.Marshal(sess.Attrs)
	if err != nil {
		return fmt.Errorf("encode session attrs: %w", err)
	}

	q := s.db.Rebind(`INSERT INTO flow_sessions (user_id, flow, state, stack, attrs, generation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, flow) DO UPDATE SET
			state = excluded.state,
			stack = excluded.stack,
			attrs = excluded.attrs,
			generation = excluded.generation,
			updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, q,
		sess.UserID, sess.Flow, string(sess.State), stack, attrs, sess.Generation, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *sqlStore) Clear(ctx context.Context, userID int64, flow string) error {
	q := s.db.Rebind(`DELETE FROM flow_sessions WHERE user_id = ? AND flow = ?`)
	if _, err := s.db.ExecContext(ctx, q, userID, flow); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
