package flow

import (
	"encoding/json"
	"time"
)

// State identifies one node in a flow's transition table.
type State string

// StateError is the shared pseudo-state entered when a transition handler
// fails. It always offers retry and return-to-menu.
const StateError State = "error"

// Session holds everything the engine persists for one user in one flow:
// the active state, the back-navigation stack and an open attribute bag.
// Each flow documents the attribute keys it owns.
type Session struct {
	UserID     int64
	Flow       string
	State      State
	Stack      []State
	Attrs      map[string]any
	Generation int64
	UpdatedAt  time.Time
}

// NewSession constructs a fresh session positioned at the given state.
func NewSession(userID int64, flow string, entry State) *Session {
	return &Session{
		UserID: userID,
		Flow:   flow,
		State:  entry,
		Attrs:  make(map[string]any),
	}
}

// Push records the current state on the navigation stack.
func (s *Session) Push() {
	s.Stack = append(s.Stack, s.State)
}

// Pop removes and returns the most recent stacked state. The second return
// is false when the stack is empty.
func (s *Session) Pop() (State, bool) {
	if len(s.Stack) == 0 {
		return "", false
	}
	st := s.Stack[len(s.Stack)-1]
	s.Stack = s.Stack[:len(s.Stack)-1]
	return st, true
}

// SetAttr stores an attribute value under key.
func (s *Session) SetAttr(key string, value any) {
	if s.Attrs == nil {
		s.Attrs = make(map[string]any)
	}
	s.Attrs[key] = value
}

// DelAttr removes an attribute.
func (s *Session) DelAttr(key string) {
	delete(s.Attrs, key)
}

// AttrString returns the attribute as a string, or "" when absent or of
// another type.
func (s *Session) AttrString(key string) string {
	if v, ok := s.Attrs[key].(string); ok {
		return v
	}
	return ""
}

// AttrInt returns the attribute as an int. Values that round-tripped through
// JSON arrive as float64 and are converted.
func (s *Session) AttrInt(key string) int {
	switch v := s.Attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// AttrInt64 returns the attribute as an int64, following the same
// conversions as AttrInt.
func (s *Session) AttrInt64(key string) int64 {
	switch v := s.Attrs[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// AttrBool returns the attribute as a bool, false when absent.
func (s *Session) AttrBool(key string) bool {
	if v, ok := s.Attrs[key].(bool); ok {
		return v
	}
	return false
}
