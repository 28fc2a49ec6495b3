package subs

import (
	"context"
	"time"

	"log/slog"

	"github.com/greetly/greetly/core/logger"
)

// Plan is one purchasable subscription option.
type Plan struct {
	ID     string
	Title  string
	Days   int
	Amount int
}

// DefaultPlans are the options offered in the purchase flow.
var DefaultPlans = []Plan{
	{ID: "week", Title: "1 week", Days: 7, Amount: 99},
	{ID: "month", Title: "1 month", Days: 30, Amount: 299},
	{ID: "quarter", Title: "3 months", Days: 90, Amount: 699},
}

// PlanByID looks a plan up by its identifier.
func PlanByID(id string) (Plan, bool) {
	for _, p := range DefaultPlans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Repo persists one expiry timestamp per user.
type Repo interface {
	ExpiresAt(ctx context.Context, userID int64) (time.Time, bool, error)
	SetExpiresAt(ctx context.Context, userID int64, at time.Time) error
}

// Service answers subscription questions. The only stored fact is the
// expiry; activity is always computed against the current time.
type Service struct {
	repo Repo
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{repo: repo, now: time.Now}
}

// IsActive reports whether the user's subscription has not yet expired.
func (s *Service) IsActive(ctx context.Context, userID int64) (bool, error) {
	at, ok, err := s.repo.ExpiresAt(ctx, userID)
	if err != nil {
		return false, err
	}
	return ok && at.After(s.now()), nil
}

// Extend grants days on top of whatever remains. Remaining time on an
// active subscription stacks: the grant counts from max(now, expiry).
func (s *Service) Extend(ctx context.Context, userID int64, days int) (time.Time, error) {
	base := s.now()
	if at, ok, err := s.repo.ExpiresAt(ctx, userID); err != nil {
		return time.Time{}, err
	} else if ok && at.After(base) {
		base = at
	}
	expires := base.AddDate(0, 0, days)
	if err := s.repo.SetExpiresAt(ctx, userID, expires); err != nil {
		return time.Time{}, err
	}
	logger.Info(ctx, "subs", "subs.extended",
		slog.Int64("user_id", userID),
		slog.Int("days", days),
		slog.Time("expires_at", expires),
	)
	return expires, nil
}
