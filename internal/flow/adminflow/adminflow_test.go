package adminflow

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetly/greetly/internal/assets"
	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/sched"
	"github.com/greetly/greetly/internal/users"
)

const adminID = int64(100)

type fixture struct {
	mux       *flow.Mux
	courier   *delivery.MemoryCourier
	assets    *assets.Service
	users     users.Repo
	schedRepo sched.Repo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		courier:   delivery.NewMemoryCourier(),
		assets:    assets.NewService(assets.NewMemoryRepo(), assets.NopSync{}),
		users:     users.NewMemoryRepo(),
		schedRepo: sched.NewMemoryRepo(),
	}
	f.mux = flow.NewMux(flow.Options{Store: flow.NewMemoryStore(), Courier: f.courier})
	require.NoError(t, f.mux.Register(New(Deps{
		Assets:      f.assets,
		Users:       f.users,
		Broadcaster: sched.NewBroadcaster(f.courier, 2, time.Millisecond),
		Scheduler:   sched.New(sched.Options{Repo: f.schedRepo, Courier: f.courier}),
	})))
	return f
}

func (f *fixture) press(t *testing.T, action, data string) {
	t.Helper()
	_, err := f.mux.Dispatch(context.Background(), adminID, flow.ActionEvent(action, data))
	require.NoError(t, err)
}

func (f *fixture) say(t *testing.T, text string) {
	t.Helper()
	_, err := f.mux.Dispatch(context.Background(), adminID, flow.TextEvent(text))
	require.NoError(t, err)
}

func (f *fixture) lastText(t *testing.T) string {
	t.Helper()
	msgs := f.courier.SentTo(adminID)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Msg.Text
}

func TestAddAssetThroughWizard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, flow.ActionSelect, string(assets.KindFont))
	assert.Contains(t, f.lastText(t), "No fonts yet")

	f.press(t, actionAdd, "")
	f.say(t, "Pacifico")
	f.say(t, "/assets/fonts/pacifico.ttf")

	list, err := f.assets.Repo.List(ctx, assets.KindFont)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pacifico", list[0].Name)
	assert.Equal(t, "/assets/fonts/pacifico.ttf", list[0].Value)

	// Back on the list with the new item showing.
	assert.Contains(t, f.lastText(t), "Pacifico")
	assert.Contains(t, f.lastText(t), "1 of 1")
}

func TestRemoveAssetFromList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.assets.Add(ctx, assets.Asset{Kind: assets.KindColor, Name: "Crimson", Value: "#dc143c"})
	require.NoError(t, err)
	_, err = f.assets.Add(ctx, assets.Asset{Kind: assets.KindColor, Name: "Gold", Value: "#ffd700"})
	require.NoError(t, err)

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, flow.ActionSelect, string(assets.KindColor))
	assert.Contains(t, f.lastText(t), "Crimson")

	f.press(t, actionRemove, strconv.FormatInt(id, 10))

	list, err := f.assets.Repo.List(ctx, assets.KindColor)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Gold", list[0].Name)
	assert.Contains(t, f.lastText(t), "Gold")
}

func TestAssetListPagesWrapAround(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Roses", "Stars", "Ocean"} {
		_, err := f.assets.Add(ctx, assets.Asset{Kind: assets.KindBackground, Name: name, Value: name + ".png"})
		require.NoError(t, err)
	}

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, flow.ActionSelect, string(assets.KindBackground))
	assert.Contains(t, f.lastText(t), "Roses")

	f.press(t, flow.ActionPrev, "")
	assert.Contains(t, f.lastText(t), "Ocean")
	f.press(t, flow.ActionNext, "")
	assert.Contains(t, f.lastText(t), "Roses")
}

func TestBroadcastNowReachesEveryUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []int64{201, 202, 203} {
		require.NoError(t, f.users.Upsert(ctx, id, "u"))
	}

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, actionBroadcast, "")
	f.say(t, "We have new backgrounds!")
	f.press(t, actionNow, "")

	for _, id := range []int64{201, 202, 203} {
		msgs := f.courier.SentTo(id)
		require.Len(t, msgs, 1, "recipient %d", id)
		assert.Equal(t, "We have new backgrounds!", msgs[0].Msg.Text)
	}
	assert.Contains(t, f.lastText(t), "3 of 3")
	assert.False(t, f.mux.InProgress(adminID))
}

func TestScheduledBroadcastIsDeferredPerRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.Upsert(ctx, 201, "a"))
	require.NoError(t, f.users.Upsert(ctx, 202, "b"))

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, actionBroadcast, "")
	f.say(t, "Happy New Year!")
	f.say(t, "2027-12-31 18:00")

	// Nothing goes out immediately.
	assert.Empty(t, f.courier.SentTo(201))
	assert.Empty(t, f.courier.SentTo(202))
	assert.Contains(t, f.lastText(t), "scheduled")

	due, err := f.schedRepo.DuePending(ctx, time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestBroadcastRejectsPastDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, actionBroadcast, "")
	f.say(t, "Old news")
	f.say(t, "2001-01-01 10:00")

	assert.Contains(t, f.lastText(t), "future date")
	assert.True(t, f.mux.InProgress(adminID))
}

func TestBackFromAssetListReturnsToMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mux.Start(ctx, adminID, Name))
	f.press(t, flow.ActionSelect, string(assets.KindFont))
	f.press(t, flow.ActionBack, "")
	assert.Contains(t, f.lastText(t), "Admin panel")
}
