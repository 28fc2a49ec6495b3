package quota

import (
	"context"
	"time"
)

// Durable quota kinds. Regeneration counters are not here on purpose: they
// are flow-scoped and live in the session's attributes.
const (
	// KindFreeMessages counts free-tier chat messages. All-time, cleared
	// when the user buys a subscription.
	KindFreeMessages = "free_messages"
	// KindDailySurprise counts daily-surprise uses and resets each day.
	KindDailySurprise = "daily_surprise"
)

const anchorLayout = "2006-01-02"

// Repo persists per-(user, kind) counters. Increment is atomic: when the
// stored anchor differs from the given one the counter restarts at 1 in the
// same statement, never via read-modify-write.
type Repo interface {
	Count(ctx context.Context, userID int64, kind, anchor string) (int, error)
	Increment(ctx context.Context, userID int64, kind, anchor string) (int, error)
	Clear(ctx context.Context, userID int64, kind string) error
}

// Gate enforces usage limits. Check runs before the costed operation,
// Consume only after it succeeded, so failed attempts are never charged.
type Gate struct {
	repo  Repo
	daily map[string]bool
	now   func() time.Time
}

// NewGate constructs a Gate. KindDailySurprise always rolls over at midnight
// UTC via a lazy anchor comparison; extraDaily adds further daily kinds.
// Everything else is all-time.
func NewGate(repo Repo, extraDaily ...string) *Gate {
	daily := map[string]bool{KindDailySurprise: true}
	for _, k := range extraDaily {
		daily[k] = true
	}
	return &Gate{repo: repo, daily: daily, now: time.Now}
}

// Check reports whether the user is still under limit for kind. For daily
// kinds a stale anchor reads as zero; nothing is written until an actual
// consumption happens.
func (g *Gate) Check(ctx context.Context, userID int64, kind string, limit int) (bool, error) {
	n, err := g.repo.Count(ctx, userID, kind, g.anchor(kind))
	if err != nil {
		return false, err
	}
	return n < limit, nil
}

// Consume records one successful use and returns the new count.
func (g *Gate) Consume(ctx context.Context, userID int64, kind string) (int, error) {
	return g.repo.Increment(ctx, userID, kind, g.anchor(kind))
}

// Clear resets the counter, used when a purchase lifts the free tier.
func (g *Gate) Clear(ctx context.Context, userID int64, kind string) error {
	return g.repo.Clear(ctx, userID, kind)
}

func (g *Gate) anchor(kind string) string {
	if g.daily[kind] {
		return g.now().UTC().Format(anchorLayout)
	}
	return ""
}
