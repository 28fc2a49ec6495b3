package flow

import (
	"context"
	"fmt"
	"sync"

	"log/slog"

	"github.com/greetly/greetly/core/logger"
	"github.com/greetly/greetly/internal/delivery"
)

// Options configures a Mux.
type Options struct {
	Store   Store
	Courier delivery.Courier

	// FallbackText is the reply for events no transition matches, used when
	// a flow defines no fallback of its own.
	FallbackText string
	// ErrorText is the default prompt of the error pseudo-state.
	ErrorText string
	// RetryLabel and MenuLabel caption the error-state buttons.
	RetryLabel string
	MenuLabel  string

	// OnCancel runs whenever a user's flow is cancelled or completed, so
	// callers can stop background work tied to the session.
	OnCancel func(userID int64)
}

// Mux owns the registered flow definitions and routes each user's events to
// their active flow. Events for one user arrive sequentially, so the mux
// only guards its own maps.
type Mux struct {
	mu     sync.RWMutex
	flows  map[string]*Definition
	active map[int64]string
	gens   map[sessionKey]int64

	store   Store
	courier delivery.Courier
	opts    Options
}

// NewMux constructs a Mux. Store and Courier are required.
func NewMux(opts Options) *Mux {
	if opts.FallbackText == "" {
		opts.FallbackText = "I didn't understand that. Please use the buttons."
	}
	if opts.ErrorText == "" {
		opts.ErrorText = "Something went wrong. You can try again or return to the menu."
	}
	if opts.RetryLabel == "" {
		opts.RetryLabel = "Try again"
	}
	if opts.MenuLabel == "" {
		opts.MenuLabel = "Main menu"
	}
	return &Mux{
		flows:   make(map[string]*Definition),
		active:  make(map[int64]string),
		gens:    make(map[sessionKey]int64),
		store:   opts.Store,
		courier: opts.Courier,
		opts:    opts,
	}
}

// Register validates a definition and adds it to the mux.
func (m *Mux) Register(d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.flows[d.Name()]; dup {
		return fmt.Errorf("flow %s: already registered", d.Name())
	}
	m.flows[d.Name()] = d
	return nil
}

// InProgress reports whether the user currently has an active flow.
func (m *Mux) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[userID]
	return ok
}

// ActiveGeneration returns the generation of the user's current session in
// the given flow, or 0 when none exists. Background jobs compare it before
// applying results.
func (m *Mux) ActiveGeneration(ctx context.Context, userID int64, flow string) int64 {
	sess, ok, err := m.store.Get(ctx, userID, flow)
	if err != nil || !ok {
		return 0
	}
	return sess.Generation
}

// Start cancels any flow the user has in progress, creates a fresh session
// for the named flow and renders its entry prompt.
func (m *Mux) Start(ctx context.Context, userID int64, flowName string) error {
	m.mu.RLock()
	def, ok := m.flows[flowName]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("flow %s: not registered", flowName)
	}

	if err := m.Cancel(ctx, userID); err != nil {
		return err
	}

	// Generations only grow within a process, so a job captured before a
	// cancel can never match a session created after it.
	m.mu.Lock()
	m.gens[sessionKey{userID, flowName}]++
	gen := m.gens[sessionKey{userID, flowName}]
	m.mu.Unlock()

	sess := NewSession(userID, flowName, def.Entry())
	sess.Generation = gen
	fc := &Ctx{Session: sess, Courier: m.courier}
	if err := m.runEnter(ctx, def, fc, def.Entry()); err != nil {
		return err
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return err
	}

	m.mu.Lock()
	m.active[userID] = flowName
	m.mu.Unlock()

	logger.Debug(ctx, "flow", "flow.start",
		slog.Int64("user_id", userID),
		slog.String("flow", flowName),
		slog.Int64("generation", gen),
	)
	return nil
}

// Cancel ends the user's active flow, clearing its session and stopping any
// background work tied to it.
func (m *Mux) Cancel(ctx context.Context, userID int64) error {
	m.mu.Lock()
	flowName, ok := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if m.opts.OnCancel != nil {
		m.opts.OnCancel(userID)
	}
	if err := m.store.Clear(ctx, userID, flowName); err != nil {
		return err
	}
	logger.Debug(ctx, "flow", "flow.cancel",
		slog.Int64("user_id", userID),
		slog.String("flow", flowName),
	)
	return nil
}

// Dispatch routes one event to the user's active flow. The first return
// reports whether an active flow consumed the event.
func (m *Mux) Dispatch(ctx context.Context, userID int64, ev Event) (bool, error) {
	m.mu.RLock()
	flowName, ok := m.active[userID]
	def := m.flows[flowName]
	m.mu.RUnlock()
	if !ok || def == nil {
		return false, nil
	}

	sess, found, err := m.store.Get(ctx, userID, flowName)
	if err != nil {
		return true, err
	}
	if !found {
		m.mu.Lock()
		delete(m.active, userID)
		m.mu.Unlock()
		return false, nil
	}

	fc := &Ctx{Session: sess, Event: ev, Courier: m.courier}

	switch {
	case ev.Kind == ActionMenu:
		return true, m.Cancel(ctx, userID)
	case ev.Kind == ActionBack:
		return true, m.handleBack(ctx, def, fc)
	case ev.Kind == ActionRetry && sess.State == StateError:
		return true, m.restore(ctx, def, fc)
	}

	tr, matched := def.lookup(sess.State, ev.Kind)
	if !matched {
		return true, m.handleUnmatched(ctx, def, fc)
	}

	if tr.Do != nil {
		if err := tr.Do(ctx, fc); err != nil {
			return true, m.fail(ctx, def, fc, err)
		}
	}

	if fc.switchFlow != "" {
		return true, m.Start(ctx, userID, fc.switchFlow)
	}

	target := tr.To
	if fc.stay {
		target = ""
	} else if fc.redirect != nil {
		target = *fc.redirect
	}
	if target == "" {
		return true, m.store.Put(ctx, sess)
	}

	if !tr.NoPush {
		sess.Push()
	}
	sess.State = target

	if def.terminals[target] {
		if err := m.runEnter(ctx, def, fc, target); err != nil {
			return true, m.fail(ctx, def, fc, err)
		}
		return true, m.finish(ctx, userID, flowName)
	}

	if err := m.runEnter(ctx, def, fc, target); err != nil {
		return true, m.fail(ctx, def, fc, err)
	}
	return true, m.store.Put(ctx, sess)
}

// handleBack pops the navigation stack and re-renders the restored state.
// At the entry state, with nothing to pop, back exits the flow.
func (m *Mux) handleBack(ctx context.Context, def *Definition, fc *Ctx) error {
	sess := fc.Session
	if sess.State == StateError {
		return m.restore(ctx, def, fc)
	}
	prev, ok := sess.Pop()
	if !ok {
		return m.Cancel(ctx, sess.UserID)
	}
	sess.State = prev
	if err := m.runEnter(ctx, def, fc, prev); err != nil {
		return m.fail(ctx, def, fc, err)
	}
	return m.store.Put(ctx, sess)
}

// restore leaves the error pseudo-state and re-enters the state the failed
// transition started from.
func (m *Mux) restore(ctx context.Context, def *Definition, fc *Ctx) error {
	sess := fc.Session
	from := State(sess.AttrString(attrErrorState))
	if from == "" {
		from = def.Entry()
	}
	sess.DelAttr(attrErrorState)
	sess.State = from
	if err := m.runEnter(ctx, def, fc, from); err != nil {
		return m.fail(ctx, def, fc, err)
	}
	// Retrying a failed final step can succeed and complete the flow.
	if def.terminals[from] {
		return m.finish(ctx, sess.UserID, def.Name())
	}
	return m.store.Put(ctx, sess)
}

func (m *Mux) handleUnmatched(ctx context.Context, def *Definition, fc *Ctx) error {
	logger.Debug(ctx, "flow", "flow.unhandled_event",
		slog.Int64("user_id", fc.Session.UserID),
		slog.String("flow", def.Name()),
		slog.String("state", string(fc.Session.State)),
		slog.String("event", fc.Event.Kind),
	)
	if def.fallback != nil {
		if err := def.fallback(ctx, fc); err != nil {
			return m.fail(ctx, def, fc, err)
		}
		return m.store.Put(ctx, fc.Session)
	}
	_, err := fc.Send(ctx, delivery.Message{Text: m.opts.FallbackText})
	if err != nil {
		return err
	}
	return m.store.Put(ctx, fc.Session)
}

// fail moves the session into the error pseudo-state, remembering where the
// failure happened so retry can re-enter that state. The failed prompt is
// always replaced with a visible error prompt.
func (m *Mux) fail(ctx context.Context, def *Definition, fc *Ctx, cause error) error {
	sess := fc.Session
	logger.Error(ctx, "flow", "flow.transition_failed",
		slog.Int64("user_id", sess.UserID),
		slog.String("flow", def.Name()),
		slog.String("state", string(sess.State)),
		slog.String("event", fc.Event.Kind),
		slog.String("err", cause.Error()),
	)

	if sess.State != StateError {
		sess.SetAttr(attrErrorState, string(sess.State))
		sess.State = StateError
	}

	if enter, ok := def.enter[StateError]; ok {
		if err := enter(ctx, fc); err == nil {
			return m.store.Put(ctx, sess)
		}
	}
	msg := delivery.Message{
		Text: m.opts.ErrorText,
		Rows: [][]delivery.Button{delivery.Row(
			delivery.Btn(m.opts.RetryLabel, ActionRetry, ""),
			delivery.Btn(m.opts.MenuLabel, ActionMenu, ""),
		)},
	}
	if err := fc.Prompt(ctx, msg); err != nil {
		return err
	}
	return m.store.Put(ctx, sess)
}

func (m *Mux) finish(ctx context.Context, userID int64, flowName string) error {
	m.mu.Lock()
	delete(m.active, userID)
	m.mu.Unlock()
	if m.opts.OnCancel != nil {
		m.opts.OnCancel(userID)
	}
	if err := m.store.Clear(ctx, userID, flowName); err != nil {
		return err
	}
	logger.Info(ctx, "flow", "flow.done",
		slog.Int64("user_id", userID),
		slog.String("flow", flowName),
	)
	return nil
}

func (m *Mux) runEnter(ctx context.Context, def *Definition, fc *Ctx, st State) error {
	enter, ok := def.enter[st]
	if !ok {
		return nil
	}
	return enter(ctx, fc)
}
