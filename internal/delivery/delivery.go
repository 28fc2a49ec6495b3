// Package delivery abstracts the outbound message channel so flows,
// the scheduler, and broadcasts do not depend on the transport directly.
package delivery

import (
	"context"
)

// Button describes one inline action offered to the recipient.
// URL buttons open a link; all others fire a flow action callback.
type Button struct {
	Text   string
	Action string
	Data   string
	URL    string
}

// Message is the transport-independent outbound payload.
type Message struct {
	Text      string
	PhotoPath string
	Rows      [][]Button
}

// Ref identifies a delivered message so it can later be edited or deleted.
type Ref struct {
	ChatID    int64
	MessageID int
}

// Courier delivers messages to a single recipient. Implementations must
// treat deleting an already-deleted message as a no-op.
type Courier interface {
	Send(ctx context.Context, chatID int64, msg Message) (Ref, error)
	Edit(ctx context.Context, ref Ref, msg Message) error
	Delete(ctx context.Context, ref Ref) error
}

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Btn builds a callback button.
func Btn(text, action string, data ...string) Button {
	b := Button{Text: text, Action: action}
	if len(data) > 0 {
		b.Data = data[0]
	}
	return b
}

// Link builds a URL button.
func Link(text, url string) Button {
	return Button{Text: text, URL: url}
}
