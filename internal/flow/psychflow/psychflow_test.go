package psychflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/gen"
	"github.com/greetly/greetly/internal/quota"
	"github.com/greetly/greetly/internal/subs"
)

type fixture struct {
	mux     *flow.Mux
	courier *delivery.MemoryCourier
	gen     *gen.FakeGenerator
	gate    *quota.Gate
	subs    *subs.Service
}

func newFixture(t *testing.T, freeLimit int) *fixture {
	t.Helper()
	f := &fixture{
		courier: delivery.NewMemoryCourier(),
		gen:     &gen.FakeGenerator{Replies: []string{"r1", "r2", "r3", "r4", "r5"}},
		gate:    quota.NewGate(quota.NewMemoryRepo()),
		subs:    subs.NewService(subs.NewMemoryRepo()),
	}
	f.mux = flow.NewMux(flow.Options{Store: flow.NewMemoryStore(), Courier: f.courier})
	require.NoError(t, f.mux.Register(New(Deps{
		Gen:       f.gen,
		Quota:     f.gate,
		Subs:      f.subs,
		FreeLimit: freeLimit,
	})))
	return f
}

func (f *fixture) say(t *testing.T, text string) {
	t.Helper()
	_, err := f.mux.Dispatch(context.Background(), 7, flow.TextEvent(text))
	require.NoError(t, err)
}

func lastText(f *fixture) string {
	sent := f.courier.SentTo(7)
	return sent[len(sent)-1].Msg.Text
}

func TestChatRepliesAndKeepsHistory(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.say(t, "I feel stressed")
	assert.Equal(t, "r1", lastText(f))
	f.say(t, "mostly about work")
	assert.Equal(t, "r2", lastText(f))

	// The second request carried the first exchange as context.
	require.Len(t, f.gen.Calls, 2)
	turns := f.gen.Calls[1].Turns
	require.Len(t, turns, 3)
	assert.Equal(t, gen.Turn{Role: gen.RoleUser, Text: "I feel stressed"}, turns[0])
	assert.Equal(t, gen.Turn{Role: gen.RoleAssistant, Text: "r1"}, turns[1])
	assert.Equal(t, gen.Turn{Role: gen.RoleUser, Text: "mostly about work"}, turns[2])
}

func TestFreeTierLimitBlocksWithUpgradePrompt(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.say(t, "one")
	f.say(t, "two")
	f.say(t, "three")

	assert.Contains(t, lastText(f), "free messages")
	// No generation was attempted for the refused message.
	assert.Len(t, f.gen.Calls, 2)
}

func TestSubscriberIsUnlimited(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.subs.Extend(ctx, 7, 30)
	require.NoError(t, err)
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.say(t, "one")
	f.say(t, "two")
	f.say(t, "three")
	assert.Equal(t, "r3", lastText(f))

	// Subscribers are never charged free-tier quota.
	ok, err := f.gate.Check(ctx, 7, quota.KindFreeMessages, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailedGenerationDoesNotChargeQuota(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.gen.Err = gen.ErrEmptyCompletion
	f.say(t, "hello?")

	// The attempt failed, so the allowance is untouched and the session
	// offers a retry.
	ok, err := f.gate.Check(ctx, 7, quota.KindFreeMessages, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, lastText(f), "try again")

	f.gen.Err = nil
	_, err = f.mux.Dispatch(ctx, 7, flow.ActionEvent(flow.ActionRetry, ""))
	require.NoError(t, err)
	f.say(t, "hello again")
	assert.Equal(t, "r1", lastText(f))
}
