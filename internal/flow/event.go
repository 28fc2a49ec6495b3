package flow

// EventText is the kind assigned to free-text input. Every other kind is an
// action token carried by a pressed button.
const EventText = "text"

// Reserved action tokens understood by the engine itself. Flows may define
// any other token they like.
const (
	ActionBack   = "back"
	ActionMenu   = "menu"
	ActionRetry  = "retry"
	ActionNext   = "next"
	ActionPrev   = "prev"
	ActionSelect = "select"
)

// Event is one inbound user action: either free text or a named button press.
type Event struct {
	Kind string
	Text string
	Data string
}

// TextEvent builds an event for a free-text message.
func TextEvent(text string) Event {
	return Event{Kind: EventText, Text: text}
}

// ActionEvent builds an event for a button press, with optional payload.
func ActionEvent(kind, data string) Event {
	return Event{Kind: kind, Data: data}
}
