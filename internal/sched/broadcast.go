package sched

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/greetly/greetly/core/logger"
	"github.com/greetly/greetly/internal/delivery"
)

// Broadcaster fans one message out to a recipient set in fixed-size batches
// with a pause between batches, staying under the delivery channel's rate
// limits. Individual recipient failures are collected, not fatal.
type Broadcaster struct {
	courier delivery.Courier

	batchSize  int
	batchDelay time.Duration
}

// NewBroadcaster constructs a Broadcaster. Zero values fall back to batches
// of 25 sent half a second apart.
func NewBroadcaster(courier delivery.Courier, batchSize int, batchDelay time.Duration) *Broadcaster {
	if batchSize <= 0 {
		batchSize = 25
	}
	if batchDelay <= 0 {
		batchDelay = 500 * time.Millisecond
	}
	return &Broadcaster{courier: courier, batchSize: batchSize, batchDelay: batchDelay}
}

// Send delivers msg to every recipient. The returned error, if any, is a
// per-recipient summary; a single bad recipient never aborts the rest.
func (b *Broadcaster) Send(ctx context.Context, recipients []int64, msg delivery.Message) (int, error) {
	var errs *multierror.Error
	sent := 0
	for i := 0; i < len(recipients); i += b.batchSize {
		if i > 0 {
			select {
			case <-ctx.Done():
				errs = multierror.Append(errs, ctx.Err())
				return sent, errs.ErrorOrNil()
			case <-time.After(b.batchDelay):
			}
		}
		end := i + b.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		for _, chatID := range recipients[i:end] {
			if _, err := b.courier.Send(ctx, chatID, msg); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("recipient %d: %w", chatID, err))
				continue
			}
			sent++
		}
	}
	logger.Info(ctx, "sched", "broadcast.done",
		slog.Int("recipients", len(recipients)),
		slog.Int("sent", sent),
		slog.Int("failed", len(recipients)-sent),
	)
	return sent, errs.ErrorOrNil()
}

// ScheduleAll enqueues one deferred broadcast action per recipient so the
// fan-out itself survives a restart. The scheduler delivers each share with
// its usual attempt sequence.
func (b *Broadcaster) ScheduleAll(ctx context.Context, s *Scheduler, recipients []int64, p LetterPayload, at time.Time) error {
	var errs *multierror.Error
	for _, chatID := range recipients {
		a, err := NewAction(chatID, KindBroadcast, p, at)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("recipient %d: %w", chatID, err))
			continue
		}
		if err := s.Schedule(ctx, a); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("recipient %d: %w", chatID, err))
		}
	}
	return errs.ErrorOrNil()
}
