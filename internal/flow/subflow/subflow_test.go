package subflow

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
	"github.com/greetly/greetly/internal/quota"
	"github.com/greetly/greetly/internal/subs"
)

type fixture struct {
	mux      *flow.Mux
	courier  *delivery.MemoryCourier
	gateway  *paygate.FakeGateway
	subs     *subs.Service
	subsRepo subs.Repo
	gate     *quota.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := subs.NewMemoryRepo()
	f := &fixture{
		courier:  delivery.NewMemoryCourier(),
		gateway:  paygate.NewFakeGateway(),
		subs:     subs.NewService(repo),
		subsRepo: repo,
		gate:     quota.NewGate(quota.NewMemoryRepo()),
	}
	f.mux = flow.NewMux(flow.Options{Store: flow.NewMemoryStore(), Courier: f.courier})
	require.NoError(t, f.mux.Register(New(Deps{
		Subs:    f.subs,
		Quota:   f.gate,
		Gateway: f.gateway,
	})))
	return f
}

func (f *fixture) press(t *testing.T, action, data string) {
	t.Helper()
	_, err := f.mux.Dispatch(context.Background(), 7, flow.ActionEvent(action, data))
	require.NoError(t, err)
}

func TestPurchaseGrantsSubscriptionAndClearsFreeTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The user exhausted the free tier before buying.
	for i := 0; i < 3; i++ {
		_, err := f.gate.Consume(ctx, 7, quota.KindFreeMessages)
		require.NoError(t, err)
	}

	require.NoError(t, f.mux.Start(ctx, 7, Name))
	f.press(t, flow.ActionSelect, "month")
	require.Len(t, f.gateway.Created, 1)
	assert.Equal(t, 299, f.gateway.Created[0].Amount)

	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusSucceeded)
	f.press(t, paygate.ActionVerify, "")

	assert.False(t, f.mux.InProgress(7))
	active, err := f.subs.IsActive(ctx, 7)
	require.NoError(t, err)
	assert.True(t, active)

	ok, err := f.gate.Check(ctx, 7, quota.KindFreeMessages, 3)
	require.NoError(t, err)
	assert.True(t, ok, "free tier should be reset after purchase")
}

func TestVerifyAfterSuccessDoesNotDoubleGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mux.Start(ctx, 7, Name))
	f.press(t, flow.ActionSelect, "week")
	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusSucceeded)
	f.press(t, paygate.ActionVerify, "")

	granted, ok, err := f.subsRepo.ExpiresAt(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	// The flow is gone; a second verify press cannot re-run the grant.
	handled, err := f.mux.Dispatch(ctx, 7, flow.ActionEvent(paygate.ActionVerify, ""))
	require.NoError(t, err)
	assert.False(t, handled)

	after, ok, err := f.subsRepo.ExpiresAt(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, granted, after)
}

func TestRetryAfterFailedConfirmationDoesNotExtendTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mux.Start(ctx, 7, Name))
	f.press(t, flow.ActionSelect, "week")
	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusSucceeded)

	// The extension lands, but the confirmation message does not.
	f.courier.FailNext(7, errors.New("telegram down"), 1)
	f.press(t, paygate.ActionVerify, "")
	require.True(t, f.mux.InProgress(7), "failed confirmation keeps the flow open for retry")

	granted, ok, err := f.subsRepo.ExpiresAt(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	f.press(t, flow.ActionRetry, "")
	assert.False(t, f.mux.InProgress(7))

	after, ok, err := f.subsRepo.ExpiresAt(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, granted, after, "retry must only resend the confirmation")
}

func TestFailedPaymentReturnsToPlanChoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mux.Start(ctx, 7, Name))
	f.press(t, flow.ActionSelect, "week")
	f.gateway.Resolve(f.gateway.Created[0].Ref, paygate.StatusFailed)
	f.press(t, paygate.ActionVerify, "")

	assert.True(t, f.mux.InProgress(7))
	active, err := f.subs.IsActive(ctx, 7)
	require.NoError(t, err)
	assert.False(t, active)

	// Choosing again creates a fresh payment.
	f.press(t, flow.ActionSelect, "month")
	assert.Len(t, f.gateway.Created, 2)
}

func TestUnknownPlanIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mux.Start(ctx, 7, Name))

	f.press(t, flow.ActionSelect, "lifetime")
	assert.Empty(t, f.gateway.Created)
	assert.True(t, f.mux.InProgress(7))
}

func TestStackingPurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy := func(plan string) {
		require.NoError(t, f.mux.Start(ctx, 7, Name))
		f.press(t, flow.ActionSelect, plan)
		f.gateway.Resolve(f.gateway.Created[len(f.gateway.Created)-1].Ref, paygate.StatusSucceeded)
		f.press(t, paygate.ActionVerify, "")
	}
	start := time.Now()
	buy("week")
	buy("month")

	expires, ok, err := f.subsRepo.ExpiresAt(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, start.AddDate(0, 0, 37), expires, time.Minute)
}
