package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetly/greetly/internal/delivery"
)

const (
	stPick    State = "picking"
	stWrite   State = "writing"
	stDone    State = "done"
	actChoose       = "choose"
)

// testFlow is a minimal three-state wizard: pick an item, write a text,
// done. The write step's handler is injectable so tests can make it fail.
func testFlow(onText Action) *Definition {
	d := New("test", stPick)
	d.Enter(stPick, func(ctx context.Context, fc *Ctx) error {
		return fc.Prompt(ctx, delivery.Message{Text: "pick something"})
	})
	d.Enter(stWrite, func(ctx context.Context, fc *Ctx) error {
		return fc.Prompt(ctx, delivery.Message{Text: "write something"})
	})
	d.Enter(stDone, func(ctx context.Context, fc *Ctx) error {
		_, err := fc.Send(ctx, delivery.Message{Text: "all done"})
		return err
	})
	d.On(stPick, actChoose, Transition{To: stWrite, Do: func(ctx context.Context, fc *Ctx) error {
		fc.Session.SetAttr("choice", fc.Event.Data)
		return nil
	}})
	d.On(stWrite, EventText, Transition{To: stDone, Do: onText})
	d.Terminal(stDone)
	return d
}

func newTestMux(t *testing.T, d *Definition) (*Mux, *delivery.MemoryCourier) {
	t.Helper()
	courier := delivery.NewMemoryCourier()
	m := NewMux(Options{Store: NewMemoryStore(), Courier: courier})
	require.NoError(t, m.Register(d))
	return m, courier
}

func TestValidateFlagsDeadEndStates(t *testing.T) {
	d := New("broken", stPick)
	d.On(stPick, actChoose, Transition{To: stWrite})
	// stWrite has no outgoing transition and is not terminal.
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing")
}

func TestValidateFlagsUnreachableStates(t *testing.T) {
	d := New("broken", stPick)
	d.On(stPick, actChoose, Transition{To: stPick, NoPush: true})
	d.On(stWrite, EventText, Transition{To: stPick})
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestDispatchAdvancesAndPushesStack(t *testing.T) {
	m, _ := newTestMux(t, testFlow(nil))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))
	require.True(t, m.InProgress(7))

	handled, err := m.Dispatch(ctx, 7, ActionEvent(actChoose, "roses"))
	require.NoError(t, err)
	require.True(t, handled)

	sess, ok, err := m.store.Get(ctx, 7, "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stWrite, sess.State)
	assert.Equal(t, []State{stPick}, sess.Stack)
	assert.Equal(t, "roses", sess.AttrString("choice"))
}

func TestBackRestoresPoppedState(t *testing.T) {
	m, courier := newTestMux(t, testFlow(nil))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))
	_, err := m.Dispatch(ctx, 7, ActionEvent(actChoose, "roses"))
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, 7, ActionEvent(ActionBack, ""))
	require.NoError(t, err)

	sess, ok, err := m.store.Get(ctx, 7, "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stPick, sess.State)
	assert.Empty(t, sess.Stack)

	// The pick prompt was rendered again after back.
	sent := courier.SentTo(7)
	require.NotEmpty(t, sent)
	assert.Equal(t, "pick something", sent[len(sent)-1].Msg.Text)
}

func TestBackAtEntryExitsFlow(t *testing.T) {
	m, _ := newTestMux(t, testFlow(nil))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))

	handled, err := m.Dispatch(ctx, 7, ActionEvent(ActionBack, ""))
	require.NoError(t, err)
	require.True(t, handled)
	assert.False(t, m.InProgress(7))
}

func TestUnmatchedEventRepromptsWithoutTransition(t *testing.T) {
	m, courier := newTestMux(t, testFlow(nil))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))

	// Free text is not a valid event while picking.
	handled, err := m.Dispatch(ctx, 7, TextEvent("hello?"))
	require.NoError(t, err)
	require.True(t, handled)

	sess, ok, _ := m.store.Get(ctx, 7, "test")
	require.True(t, ok)
	assert.Equal(t, stPick, sess.State)

	sent := courier.SentTo(7)
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[len(sent)-1].Msg.Text, "use the buttons")
}

func TestFailedHandlerEntersErrorStateAndRetryRestores(t *testing.T) {
	fail := errors.New("generator unavailable")
	failing := true
	m, courier := newTestMux(t, testFlow(func(ctx context.Context, fc *Ctx) error {
		if failing {
			return fail
		}
		return nil
	}))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))
	_, err := m.Dispatch(ctx, 7, ActionEvent(actChoose, "roses"))
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, 7, TextEvent("happy birthday"))
	require.NoError(t, err)

	sess, ok, _ := m.store.Get(ctx, 7, "test")
	require.True(t, ok)
	assert.Equal(t, StateError, sess.State)

	// The error prompt replaced the old one and offers a way forward.
	sent := courier.SentTo(7)
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	assert.Contains(t, last.Msg.Text, "try again")
	require.NotEmpty(t, last.Msg.Rows)

	// Retry re-enters the state the failure came from.
	failing = false
	_, err = m.Dispatch(ctx, 7, ActionEvent(ActionRetry, ""))
	require.NoError(t, err)
	sess, ok, _ = m.store.Get(ctx, 7, "test")
	require.True(t, ok)
	assert.Equal(t, stWrite, sess.State)
}

func TestTerminalStateClearsSession(t *testing.T) {
	var cancelled []int64
	courier := delivery.NewMemoryCourier()
	m := NewMux(Options{
		Store:    NewMemoryStore(),
		Courier:  courier,
		OnCancel: func(userID int64) { cancelled = append(cancelled, userID) },
	})
	require.NoError(t, m.Register(testFlow(nil)))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))
	_, err := m.Dispatch(ctx, 7, ActionEvent(actChoose, "roses"))
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, 7, TextEvent("happy birthday"))
	require.NoError(t, err)

	assert.False(t, m.InProgress(7))
	_, ok, _ := m.store.Get(ctx, 7, "test")
	assert.False(t, ok)
	assert.Equal(t, []int64{7}, cancelled)

	sent := courier.SentTo(7)
	require.NotEmpty(t, sent)
	assert.Equal(t, "all done", sent[len(sent)-1].Msg.Text)
}

func TestMenuCancelsActiveFlow(t *testing.T) {
	m, _ := newTestMux(t, testFlow(nil))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))

	handled, err := m.Dispatch(ctx, 7, ActionEvent(ActionMenu, ""))
	require.NoError(t, err)
	require.True(t, handled)
	assert.False(t, m.InProgress(7))
}

func TestRedirectOverridesTableTarget(t *testing.T) {
	d := testFlow(nil)
	d.On(stWrite, actChoose, Transition{To: stDone, Do: func(ctx context.Context, fc *Ctx) error {
		fc.Redirect(stPick)
		return nil
	}})
	m, _ := newTestMux(t, d)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, "test"))
	_, err := m.Dispatch(ctx, 7, ActionEvent(actChoose, "roses"))
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, 7, ActionEvent(actChoose, ""))
	require.NoError(t, err)
	sess, ok, _ := m.store.Get(ctx, 7, "test")
	require.True(t, ok)
	assert.Equal(t, stPick, sess.State)
}

func TestGenerationGrowsAcrossRestarts(t *testing.T) {
	m, _ := newTestMux(t, testFlow(nil))
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, 7, "test"))
	first := m.ActiveGeneration(ctx, 7, "test")
	require.NoError(t, m.Cancel(ctx, 7))
	require.NoError(t, m.Start(ctx, 7, "test"))
	second := m.ActiveGeneration(ctx, 7, "test")

	assert.Greater(t, second, first)
}

func TestDispatchIgnoresUsersWithoutActiveFlow(t *testing.T) {
	m, _ := newTestMux(t, testFlow(nil))
	handled, err := m.Dispatch(context.Background(), 99, TextEvent("hi"))
	require.NoError(t, err)
	assert.False(t, handled)
}
