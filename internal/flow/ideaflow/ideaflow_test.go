package ideaflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/gen"
)

func newIdeaMux(t *testing.T, g gen.Generator) (*flow.Mux, *delivery.MemoryCourier) {
	t.Helper()
	courier := delivery.NewMemoryCourier()
	m := flow.NewMux(flow.Options{Store: flow.NewMemoryStore(), Courier: courier})
	require.NoError(t, m.Register(New(Deps{Gen: g})))
	return m, courier
}

func press(t *testing.T, m *flow.Mux, action, data string) {
	t.Helper()
	_, err := m.Dispatch(context.Background(), 7, flow.ActionEvent(action, data))
	require.NoError(t, err)
}

func lastText(c *delivery.MemoryCourier) string {
	sent := c.SentTo(7)
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].Msg.Text
}

func TestWalkToLeafGeneratesFromChoices(t *testing.T) {
	g := &gen.FakeGenerator{Replies: []string{"1. A watch\n2. A book"}}
	m, courier := newIdeaMux(t, g)
	require.NoError(t, m.Start(context.Background(), 7, Name))

	press(t, m, flow.ActionSelect, "0") // Gift
	press(t, m, flow.ActionSelect, "1") // Friend
	press(t, m, flow.ActionSelect, "0") // Modest

	assert.Contains(t, lastText(courier), "A watch")
	require.Len(t, g.Calls, 1)
	prompt := g.Calls[0].Turns[0].Text
	assert.Contains(t, prompt, "Gift, Friend, Modest")
}

func TestBackWalksUpTheTree(t *testing.T) {
	g := &gen.FakeGenerator{Replies: []string{"ideas", "ideas"}}
	m, courier := newIdeaMux(t, g)
	require.NoError(t, m.Start(context.Background(), 7, Name))

	press(t, m, flow.ActionSelect, "0") // Gift
	press(t, m, flow.ActionSelect, "1") // Friend -> budget question
	assert.Contains(t, lastText(courier), "budget")

	press(t, m, flow.ActionBack, "")
	assert.Contains(t, lastText(courier), "gift for")

	press(t, m, flow.ActionBack, "")
	assert.Contains(t, lastText(courier), "kind of idea")

	// Back at the root, one more back leaves the flow.
	press(t, m, flow.ActionBack, "")
	assert.False(t, m.InProgress(7))
}

func TestRegenerationLimitIsFlowScoped(t *testing.T) {
	g := &gen.FakeGenerator{Replies: []string{"a", "b", "c", "d", "e", "f"}}
	m, courier := newIdeaMux(t, g)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, Name))

	press(t, m, flow.ActionSelect, "2") // Name
	press(t, m, flow.ActionSelect, "0") // Pet -> leaf, first generation

	for i := 0; i < regenLimit; i++ {
		press(t, m, actionRegen, "")
	}
	require.Len(t, g.Calls, 1+regenLimit)

	// One past the limit is refused without another generation.
	press(t, m, actionRegen, "")
	assert.Len(t, g.Calls, 1+regenLimit)
	assert.Contains(t, lastText(courier), "limit")

	// A fresh pass resets the counter.
	press(t, m, actionAgain, "")
	press(t, m, flow.ActionSelect, "2") // Name
	press(t, m, flow.ActionSelect, "0") // Pet
	press(t, m, actionRegen, "")
	assert.Len(t, g.Calls, 1+regenLimit+2)
}

func TestGenerationFailureOffersRetry(t *testing.T) {
	g := &gen.FakeGenerator{Err: gen.ErrEmptyCompletion}
	m, courier := newIdeaMux(t, g)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, 7, Name))

	press(t, m, flow.ActionSelect, "2") // Name
	press(t, m, flow.ActionSelect, "0") // Pet -> leaf, generation fails

	assert.True(t, m.InProgress(7))
	assert.Contains(t, lastText(courier), "try again")

	g.Err = nil
	g.Replies = []string{"Rex, Bello"}
	press(t, m, flow.ActionRetry, "")
	assert.Contains(t, lastText(courier), "Rex")
}

func TestTreeIsWellFormed(t *testing.T) {
	for id, node := range tree {
		if node.Template != "" {
			assert.Empty(t, node.Options, "leaf %s must not have options", id)
			continue
		}
		require.NotEmpty(t, node.Options, "node %s has neither options nor template", id)
		for _, opt := range node.Options {
			_, ok := tree[opt.Next]
			assert.True(t, ok, "node %s references missing node %s", id, opt.Next)
		}
	}
}
