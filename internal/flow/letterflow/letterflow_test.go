package letterflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/paygate"
	"github.com/greetly/greetly/internal/sched"
)

type fixture struct {
	mux       *flow.Mux
	courier   *delivery.MemoryCourier
	gateway   *paygate.FakeGateway
	repo      sched.Repo
	scheduler *sched.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		courier: delivery.NewMemoryCourier(),
		gateway: paygate.NewFakeGateway(),
		repo:    sched.NewMemoryRepo(),
	}
	f.scheduler = sched.New(sched.Options{Repo: f.repo, Courier: f.courier})
	f.mux = flow.NewMux(flow.Options{Store: flow.NewMemoryStore(), Courier: f.courier})
	require.NoError(t, f.mux.Register(New(Deps{
		Scheduler: f.scheduler,
		Gateway:   f.gateway,
		Price:     59,
	})))
	return f
}

func (f *fixture) press(t *testing.T, action, data string) {
	t.Helper()
	_, err := f.mux.Dispatch(context.Background(), 7, flow.ActionEvent(action, data))
	require.NoError(t, err)
}

func (f *fixture) send(t *testing.T, text string) {
	t.Helper()
	_, err := f.mux.Dispatch(context.Background(), 7, flow.TextEvent(text))
	require.NoError(t, err)
}

func TestLetterIsScheduledAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.send(t, "Dear future me, keep going.")
	deliverAt := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	f.send(t, deliverAt)

	require.Len(t, f.gateway.Created, 1)
	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusSucceeded)
	f.press(t, paygate.ActionVerify, "")

	assert.False(t, f.mux.InProgress(7))

	// The action is durable and pending, not yet due.
	due, err := f.repo.DuePending(ctx, time.Now().AddDate(2, 0, 0))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sched.KindLetter, due[0].Kind)
	assert.Contains(t, string(due[0].Payload), "keep going")

	due, err = f.repo.DuePending(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRetryAfterFailedConfirmationSchedulesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.send(t, "Dear future me, keep going.")
	f.send(t, time.Now().AddDate(1, 0, 0).Format("2006-01-02"))
	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusSucceeded)

	// The action is persisted, but the confirmation message does not land.
	f.courier.FailNext(7, errors.New("telegram down"), 1)
	f.press(t, paygate.ActionVerify, "")
	require.True(t, f.mux.InProgress(7), "failed confirmation keeps the flow open for retry")

	f.press(t, flow.ActionRetry, "")
	assert.False(t, f.mux.InProgress(7))

	due, err := f.repo.DuePending(ctx, time.Now().AddDate(2, 0, 0))
	require.NoError(t, err)
	assert.Len(t, due, 1, "retry must only resend the confirmation")
}

func TestFailedPaymentUnwindsToDatePrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.send(t, "the letter")
	f.send(t, time.Now().AddDate(0, 1, 0).Format("2006-01-02"))
	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusFailed)
	f.press(t, paygate.ActionVerify, "")

	sent := f.courier.SentTo(7)
	assert.Contains(t, sent[len(sent)-1].Msg.Text, "When should it arrive")

	// One back press from the re-shown date prompt returns to writing,
	// not to the same prompt again.
	f.press(t, flow.ActionBack, "")
	sent = f.courier.SentTo(7)
	assert.Contains(t, sent[len(sent)-1].Msg.Text, "Write the letter")
}

func TestMalformedDateRepromptsInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.send(t, "the letter")
	f.send(t, "next tuesday-ish")

	sent := f.courier.SentTo(7)
	assert.Contains(t, sent[len(sent)-1].Msg.Text, "couldn't read")
	assert.Empty(t, f.gateway.Created)

	// A proper date still works afterwards.
	f.send(t, time.Now().AddDate(0, 1, 0).Format("2006-01-02"))
	assert.Len(t, f.gateway.Created, 1)
}

func TestPastDateIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.send(t, "the letter")
	f.send(t, "2020-01-01")
	assert.Empty(t, f.gateway.Created)
	assert.True(t, f.mux.InProgress(7))
}

func TestNoPaymentNoSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.send(t, "the letter")
	f.send(t, time.Now().AddDate(0, 1, 0).Format("2006-01-02"))
	f.press(t, paygate.ActionVerify, "")

	due, err := f.repo.DuePending(ctx, time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.True(t, f.mux.InProgress(7))
}
