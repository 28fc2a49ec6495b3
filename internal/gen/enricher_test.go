package gen

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnricherCancelStopsJob(t *testing.T) {
	e := NewEnricher()
	started := make(chan struct{})
	var applied atomic.Bool

	e.Go(7, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		// Context cancelled before the result was ready: do not apply.
		if ctx.Err() == nil {
			applied.Store(true)
		}
	})

	<-started
	e.Cancel(7)
	e.Shutdown()
	assert.False(t, applied.Load())
}

func TestEnricherReplacesRunningJob(t *testing.T) {
	e := NewEnricher()
	firstCancelled := make(chan struct{})

	e.Go(7, func(ctx context.Context) {
		<-ctx.Done()
		close(firstCancelled)
	})
	done := make(chan struct{})
	e.Go(7, func(ctx context.Context) {
		close(done)
	})

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("first job was not cancelled when replaced")
	}
	<-done
	e.Shutdown()
}

func TestEnricherShutdownWaitsForJobs(t *testing.T) {
	e := NewEnricher()
	var finished atomic.Int32

	for i := int64(1); i <= 3; i++ {
		e.Go(i, func(ctx context.Context) {
			<-ctx.Done()
			finished.Add(1)
		})
	}
	e.Shutdown()
	assert.Equal(t, int32(3), finished.Load())
}

func TestFakeGeneratorReplaysScript(t *testing.T) {
	f := &FakeGenerator{Replies: []string{"first", "second"}}
	ctx := context.Background()

	out, err := f.Generate(ctx, "sys", []Turn{{Role: RoleUser, Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = f.Generate(ctx, "sys", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	_, err = f.Generate(ctx, "sys", nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
