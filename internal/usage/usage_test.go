package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCompleted(ctx, "u1", tier.Free, "s1", 3))
	require.NoError(t, s.RecordCompleted(ctx, "u1", tier.Free, "s2", 1))
	require.NoError(t, s.RecordCompleted(ctx, "u2", tier.Pro, "s3", 10))

	n, err := s.MonthlyCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MonthlyCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DailyCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAnonymousDailyLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Check(ctx, "anon-1", tier.Anonymous))
	require.NoError(t, s.RecordCompleted(ctx, "anon-1", tier.Anonymous, "s1", 1))

	err := s.Check(ctx, "anon-1", tier.Anonymous)
	require.ErrorIs(t, err, ErrLimitExceeded)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Limit)
	assert.Equal(t, "day", limitErr.Window)

	// A different user is unaffected.
	assert.NoError(t, s.Check(ctx, "anon-2", tier.Anonymous))
}

func TestAnonymousLimitResetsNextDay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.RecordCompleted(ctx, "anon-1", tier.Anonymous, "s1", 1))
	require.ErrorIs(t, s.Check(ctx, "anon-1", tier.Anonymous), ErrLimitExceeded)

	s.now = func() time.Time { return base.Add(2 * time.Hour) } // past midnight
	assert.NoError(t, s.Check(ctx, "anon-1", tier.Anonymous))
}

func TestFreeMonthlyLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Check(ctx, "u1", tier.Free))
		require.NoError(t, s.RecordCompleted(ctx, "u1", tier.Free, "s", 1))
	}

	err := s.Check(ctx, "u1", tier.Free)
	require.ErrorIs(t, err, ErrLimitExceeded)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Limit)
	assert.Equal(t, "month", limitErr.Window)
}

func TestMonthlyLimitResetsNextMonth(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordCompleted(ctx, "u1", tier.Free, "s", 1))
	}
	require.ErrorIs(t, s.Check(ctx, "u1", tier.Free), ErrLimitExceeded)

	s.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC) }
	assert.NoError(t, s.Check(ctx, "u1", tier.Free))
}

func TestProLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, s.RecordCompleted(ctx, "pro-1", tier.Pro, "s", 1))
	}
	require.ErrorIs(t, s.Check(ctx, "pro-1", tier.Pro), ErrLimitExceeded)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usage.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordCompleted(context.Background(), "u1", tier.Free, "s1", 1))
	require.NoError(t, s.Close())

	s2, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	n, err := s2.MonthlyCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
