package sched

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a deferred action. Transitions are one-way:
// pending to sent, or pending to failed. Rows are never deleted, so the
// table doubles as an audit log.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Kind names what a deferred action delivers.
type Kind string

const (
	// KindLetter is a future-dated letter the user wrote to themselves.
	KindLetter Kind = "letter"
	// KindNotification is a one-off scheduled notification.
	KindNotification Kind = "notification"
	// KindBroadcast is one recipient's share of an admin broadcast.
	KindBroadcast Kind = "broadcast"
)

// Action is one unit of future unattended delivery.
type Action struct {
	ID        uuid.UUID       `db:"id"`
	OwnerID   int64           `db:"owner_id"`
	Kind      Kind            `db:"kind"`
	Payload   json.RawMessage `db:"payload"`
	NotBefore time.Time       `db:"not_before"`
	Status    Status          `db:"status"`
	Attempts  int             `db:"attempts"`
	CreatedAt time.Time       `db:"created_at"`
}

// LetterPayload is the payload schema for KindLetter and KindNotification.
type LetterPayload struct {
	Text      string `json:"text"`
	PhotoPath string `json:"photo_path,omitempty"`
}

// NewAction builds a pending action ready to schedule.
func NewAction(ownerID int64, kind Kind, payload any, notBefore time.Time) (Action, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, err
	}
	return Action{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Payload:   raw,
		NotBefore: notBefore.UTC(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
