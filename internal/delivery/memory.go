package delivery

import (
	"context"
	"sync"
)

// MemoryCourier records outbound messages in memory. It is used by tests
// and by local development runs without a bot token.
type MemoryCourier struct {
	mu      sync.Mutex
	nextID  int
	Sent    []SentMessage
	Deleted []Ref
	fails   map[int64]*failSpec
}

type failSpec struct {
	err error
	// remaining send attempts to fail; negative means every attempt.
	n int
}

// SentMessage captures one Send or Edit call.
type SentMessage struct {
	ChatID int64
	Msg    Message
	Edited bool
}

// NewMemoryCourier constructs an empty in-memory courier.
func NewMemoryCourier() *MemoryCourier {
	return &MemoryCourier{fails: make(map[int64]*failSpec)}
}

// FailNext makes the next n Send calls for chatID return err. Pass a
// negative n to fail every attempt.
func (m *MemoryCourier) FailNext(chatID int64, err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[chatID] = &failSpec{err: err, n: n}
}

// Send records the message and returns a synthetic ref.
func (m *MemoryCourier) Send(ctx context.Context, chatID int64, msg Message) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.fails[chatID]; ok && f.n != 0 {
		if f.n > 0 {
			f.n--
		}
		return Ref{}, f.err
	}
	m.nextID++
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, Msg: msg})
	return Ref{ChatID: chatID, MessageID: m.nextID}, nil
}

// Edit records the edit as a sent message flagged Edited.
func (m *MemoryCourier) Edit(ctx context.Context, ref Ref, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMessage{ChatID: ref.ChatID, Msg: msg, Edited: true})
	return nil
}

// Delete records the deletion; deleting twice is a no-op by contract.
func (m *MemoryCourier) Delete(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, ref)
	return nil
}

// SentTo returns the messages recorded for one chat.
func (m *MemoryCourier) SentTo(chatID int64) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}
