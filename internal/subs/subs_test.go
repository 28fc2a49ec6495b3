package subs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedService(now time.Time) *Service {
	s := NewService(NewMemoryRepo())
	s.now = func() time.Time { return now }
	return s
}

func TestExtendStacksRemainingTime(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := fixedService(now)
	ctx := context.Background()

	_, err := s.Extend(ctx, 7, 10)
	require.NoError(t, err)
	expires, err := s.Extend(ctx, 7, 30)
	require.NoError(t, err)

	assert.Equal(t, now.AddDate(0, 0, 40), expires)
}

func TestExtendAfterExpiryCountsFromNow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := fixedService(now)
	ctx := context.Background()
	require.NoError(t, s.repo.SetExpiresAt(ctx, 7, now.AddDate(0, 0, -5)))

	expires, err := s.Extend(ctx, 7, 30)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 30), expires)
}

func TestIsActiveComputedAtCheckTime(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := fixedService(now)
	ctx := context.Background()

	active, err := s.IsActive(ctx, 7)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = s.Extend(ctx, 7, 10)
	require.NoError(t, err)
	active, err = s.IsActive(ctx, 7)
	require.NoError(t, err)
	assert.True(t, active)

	s.now = func() time.Time { return now.AddDate(0, 0, 11) }
	active, err = s.IsActive(ctx, 7)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPlanByID(t *testing.T) {
	p, ok := PlanByID("month")
	require.True(t, ok)
	assert.Equal(t, 30, p.Days)

	_, ok = PlanByID("lifetime")
	assert.False(t, ok)
}
