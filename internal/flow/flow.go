package flow

import (
	"context"
	"fmt"
	"sort"

	"github.com/greetly/greetly/internal/delivery"
)

// Ctx is passed to every enter hook and transition handler. It carries the
// session, the inbound event and the delivery channel for side effects.
type Ctx struct {
	Session *Session
	Event   Event
	Courier delivery.Courier

	redirect   *State
	stay       bool
	switchFlow string
}

// SwitchFlow ends the current flow after this transition and starts the
// named one, e.g. jumping from a quota refusal into the purchase flow.
func (fc *Ctx) SwitchFlow(name string) {
	fc.switchFlow = name
}

// Redirect overrides the transition's target state. Handlers use it for
// branches decided at runtime, such as a quota check failing.
func (fc *Ctx) Redirect(st State) {
	fc.redirect = &st
	fc.stay = false
}

// Stay keeps the session in its current state, overriding the transition's
// target. Used by gate states whose declared target only applies once the
// gate opens.
func (fc *Ctx) Stay() {
	fc.stay = true
	fc.redirect = nil
}

// Send delivers a new message to the session's user.
func (fc *Ctx) Send(ctx context.Context, msg delivery.Message) (delivery.Ref, error) {
	return fc.Courier.Send(ctx, fc.Session.UserID, msg)
}

// Attribute keys owned by the engine itself.
const (
	attrPromptChat = "prompt_chat"
	attrPromptID   = "prompt_id"
	attrErrorState = "error_state"
)

// Prompt shows the state's prompt message. When a previous prompt exists it
// is edited in place; otherwise a new message is sent and remembered. A
// failed edit falls back to sending, so the user is never left without a
// visible prompt.
func (fc *Ctx) Prompt(ctx context.Context, msg delivery.Message) error {
	chatID := fc.Session.AttrInt64(attrPromptChat)
	msgID := fc.Session.AttrInt(attrPromptID)
	if chatID != 0 && msgID != 0 {
		ref := delivery.Ref{ChatID: chatID, MessageID: msgID}
		if err := fc.Courier.Edit(ctx, ref, msg); err == nil {
			return nil
		}
	}
	ref, err := fc.Courier.Send(ctx, fc.Session.UserID, msg)
	if err != nil {
		return err
	}
	fc.Session.SetAttr(attrPromptChat, ref.ChatID)
	fc.Session.SetAttr(attrPromptID, ref.MessageID)
	return nil
}

// DropPrompt deletes the remembered prompt message, if any, and forgets it.
// Deleting an already-deleted message is a no-op at the courier level.
func (fc *Ctx) DropPrompt(ctx context.Context) {
	chatID := fc.Session.AttrInt64(attrPromptChat)
	msgID := fc.Session.AttrInt(attrPromptID)
	if chatID == 0 || msgID == 0 {
		return
	}
	_ = fc.Courier.Delete(ctx, delivery.Ref{ChatID: chatID, MessageID: msgID})
	fc.Session.DelAttr(attrPromptChat)
	fc.Session.DelAttr(attrPromptID)
}

// Action is a side effect run during a transition or on entering a state.
type Action func(ctx context.Context, fc *Ctx) error

// Transition describes one edge of a flow's table.
type Transition struct {
	// To is the target state. Empty means stay in the current state.
	// A transition back into the same state still pushes and re-enters,
	// which is how data-driven sub-flows walk their trees.
	To State
	// Do runs before the state changes. When it returns an error the
	// engine diverts to the error pseudo-state instead of transitioning.
	Do Action
	// NoPush skips recording the source state on the navigation stack.
	// Used by self-loops and paging edges where "back" should skip them.
	NoPush bool
}

// Definition is one flow's static transition table plus its enter hooks.
// Tables are forward-only; back navigation is handled by the engine via the
// session's state stack.
type Definition struct {
	name      string
	entry     State
	enter     map[State]Action
	table     map[State]map[string]Transition
	terminals map[State]bool
	fallback  Action
}

// New constructs an empty flow definition with the given entry state.
func New(name string, entry State) *Definition {
	return &Definition{
		name:      name,
		entry:     entry,
		enter:     make(map[State]Action),
		table:     make(map[State]map[string]Transition),
		terminals: make(map[State]bool),
	}
}

// Name returns the flow's namespace.
func (d *Definition) Name() string { return d.name }

// Entry returns the flow's entry state.
func (d *Definition) Entry() State { return d.entry }

// Enter registers the hook that renders a state's prompt. It runs when the
// state is entered forward and again when it is restored via back.
func (d *Definition) Enter(st State, fn Action) *Definition {
	d.enter[st] = fn
	return d
}

// On registers a transition for (state, event kind).
func (d *Definition) On(st State, kind string, tr Transition) *Definition {
	m, ok := d.table[st]
	if !ok {
		m = make(map[string]Transition)
		d.table[st] = m
	}
	m[kind] = tr
	return d
}

// Terminal marks states that end the flow. Entering one clears the session.
func (d *Definition) Terminal(states ...State) *Definition {
	for _, st := range states {
		d.terminals[st] = true
	}
	return d
}

// Fallback registers the handler for events with no matching transition.
// When unset the engine responds with its default "use the buttons" reply.
func (d *Definition) Fallback(fn Action) *Definition {
	d.fallback = fn
	return d
}

func (d *Definition) lookup(st State, kind string) (Transition, bool) {
	tr, ok := d.table[st][kind]
	return tr, ok
}

// Validate checks the table statically: every non-terminal state must have
// at least one outgoing transition, and every state must be reachable from
// the entry. The error pseudo-state is engine-managed and exempt.
func (d *Definition) Validate() error {
	states := make(map[State]bool)
	states[d.entry] = true
	for st := range d.enter {
		states[st] = true
	}
	for st, edges := range d.table {
		states[st] = true
		for _, tr := range edges {
			if tr.To != "" {
				states[tr.To] = true
			}
		}
	}
	for st := range d.terminals {
		states[st] = true
	}
	delete(states, StateError)

	var missing []string
	for st := range states {
		if d.terminals[st] {
			continue
		}
		if len(d.table[st]) == 0 {
			missing = append(missing, string(st))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("flow %s: states with no outgoing transitions: %v", d.name, missing)
	}

	reached := map[State]bool{d.entry: true}
	queue := []State{d.entry}
	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]
		for _, tr := range d.table[st] {
			if tr.To == "" || tr.To == StateError || reached[tr.To] {
				continue
			}
			reached[tr.To] = true
			queue = append(queue, tr.To)
		}
	}
	var unreachable []string
	for st := range states {
		if !reached[st] {
			unreachable = append(unreachable, string(st))
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		return fmt.Errorf("flow %s: states unreachable from %s: %v", d.name, d.entry, unreachable)
	}
	return nil
}
