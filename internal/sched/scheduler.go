package sched

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/greetly/greetly/core/logger"
	"github.com/greetly/greetly/internal/delivery"
)

// Alerter receives operator-facing escalations for actions that exhausted
// their delivery attempts. The payload travels with the alert so nothing is
// silently lost.
type Alerter interface {
	Alert(ctx context.Context, a Action, cause error)
}

// AdminAlerter delivers escalations to the admin chat.
type AdminAlerter struct {
	Courier delivery.Courier
	ChatID  int64
}

func (al *AdminAlerter) Alert(ctx context.Context, a Action, cause error) {
	text := fmt.Sprintf(
		"Delivery failed permanently.\nAction: %s\nKind: %s\nRecipient: %d\nError: %v\n\nPayload:\n%s",
		a.ID, a.Kind, a.OwnerID, cause, string(a.Payload))
	if _, err := al.Courier.Send(ctx, al.ChatID, delivery.Message{Text: text}); err != nil {
		logger.Error(ctx, "sched", "sched.alert_failed",
			slog.String("action_id", a.ID.String()),
			slog.String("err", err.Error()),
		)
	}
}

// Options configures a Scheduler.
type Options struct {
	Repo    Repo
	Courier delivery.Courier
	Alerter Alerter

	// Interval is the run-due tick period. Default one minute.
	Interval time.Duration
	// RetryDelay separates the two delivery attempts. Default 5 seconds.
	RetryDelay time.Duration
}

// Scheduler drains due deferred actions. Each action gets exactly two
// delivery attempts; the second failure is terminal and escalated.
type Scheduler struct {
	repo    Repo
	courier delivery.Courier
	alerter Alerter

	interval   time.Duration
	retryDelay time.Duration

	// runMu serializes run-due passes so overlapping ticks cannot race on
	// the same action set.
	runMu sync.Mutex
	now   func() time.Time
}

// New constructs a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Scheduler{
		repo:       opts.Repo,
		courier:    opts.Courier,
		alerter:    opts.Alerter,
		interval:   opts.Interval,
		retryDelay: opts.RetryDelay,
		now:        time.Now,
	}
}

// Schedule persists a new deferred action.
func (s *Scheduler) Schedule(ctx context.Context, a Action) error {
	if err := s.repo.Schedule(ctx, a); err != nil {
		return err
	}
	logger.Info(ctx, "sched", "sched.scheduled",
		slog.String("action_id", a.ID.String()),
		slog.String("kind", string(a.Kind)),
		slog.Int64("owner_id", a.OwnerID),
		slog.Time("not_before", a.NotBefore),
	)
	return nil
}

// Run drains matured work once at startup, recovering anything scheduled
// before a restart, then keeps draining on a timer until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.RunDue(ctx); err != nil {
		logger.Error(ctx, "sched", "sched.recovery_failed", slog.String("err", err.Error()))
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunDue(ctx); err != nil {
				logger.Error(ctx, "sched", "sched.run_failed", slog.String("err", err.Error()))
			}
		}
	}
}

// RunDue dispatches every pending action whose time has come. It is
// idempotent: already-sent actions are filtered by status, and the status
// transition itself is conditional, so a repeated pass is a no-op.
func (s *Scheduler) RunDue(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	due, err := s.repo.DuePending(ctx, s.now())
	if err != nil {
		return err
	}
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.dispatch(ctx, a)
	}
	return nil
}

// dispatch runs one action's full attempt sequence: two tries with a fixed
// pause between them, then a terminal status either way.
func (s *Scheduler) dispatch(ctx context.Context, a Action) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		lastErr = s.deliver(ctx, a)
		if lastErr == nil {
			if ok, err := s.repo.MarkSent(ctx, a.ID, attempt); err != nil {
				logger.Error(ctx, "sched", "sched.mark_sent_failed",
					slog.String("action_id", a.ID.String()),
					slog.String("err", err.Error()),
				)
			} else if ok {
				logger.Info(ctx, "sched", "sched.delivered",
					slog.String("action_id", a.ID.String()),
					slog.String("kind", string(a.Kind)),
					slog.Int("attempts", attempt),
				)
			}
			return
		}
		if attempt == 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}
	}

	ok, err := s.repo.MarkFailed(ctx, a.ID, 2)
	if err != nil {
		logger.Error(ctx, "sched", "sched.mark_failed_failed",
			slog.String("action_id", a.ID.String()),
			slog.String("err", err.Error()),
		)
		return
	}
	if !ok {
		return
	}
	logger.Error(ctx, "sched", "sched.failed_permanently",
		slog.String("action_id", a.ID.String()),
		slog.String("kind", string(a.Kind)),
		slog.Int64("owner_id", a.OwnerID),
		slog.String("err", lastErr.Error()),
	)
	if s.alerter != nil {
		s.alerter.Alert(ctx, a, lastErr)
	}
}

func (s *Scheduler) deliver(ctx context.Context, a Action) error {
	var p LetterPayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	msg := delivery.Message{Text: p.Text, PhotoPath: p.PhotoPath}
	_, err := s.courier.Send(ctx, a.OwnerID, msg)
	return err
}
