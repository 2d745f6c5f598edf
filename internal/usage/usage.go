// Package usage tracks how many videos each user has processed, backed
// by SQLite. It enforces the per-tier quota: anonymous users get a daily
// allowance, signed-in tiers a monthly one.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// ErrLimitExceeded is the sentinel for quota violations.
var ErrLimitExceeded = errors.New("usage: limit exceeded")

// LimitError carries the quota details for a rejected request.
type LimitError struct {
	Tier   tier.Tier
	Used   int
	Limit  int
	Window string // "day" or "month"
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("usage: %s tier allows %d video(s) per %s, %d used", e.Tier, e.Limit, e.Window, e.Used)
}

func (e *LimitError) Unwrap() error {
	return ErrLimitExceeded
}

// Store persists usage events in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the usage database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	// busy_timeout avoids "database locked" errors
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("usage: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("usage: ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("usage: run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_key TEXT NOT NULL,
		tier TEXT NOT NULL,
		session_id TEXT NOT NULL,
		frame_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_user_created
		ON usage_events(user_key, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordCompleted stores one finished processing run. Quota windows only
// count completed runs; failed processing does not consume quota.
func (s *Store) RecordCompleted(ctx context.Context, userKey string, t tier.Tier, sessionID string, frameCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (user_key, tier, session_id, frame_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userKey, string(t), sessionID, frameCount, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("usage: record: %w", err)
	}
	return nil
}

// countSince returns completed runs for userKey at or after cutoff.
func (s *Store) countSince(ctx context.Context, userKey string, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_events WHERE user_key = ? AND created_at >= ?`,
		userKey, cutoff.UTC().Format(time.RFC3339Nano)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("usage: count: %w", err)
	}
	return n, nil
}

// DailyCount returns runs since midnight UTC.
func (s *Store) DailyCount(ctx context.Context, userKey string) (int, error) {
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.countSince(ctx, userKey, midnight)
}

// MonthlyCount returns runs since the first of the current month UTC.
func (s *Store) MonthlyCount(ctx context.Context, userKey string) (int, error) {
	now := s.now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.countSince(ctx, userKey, firstOfMonth)
}

// Check returns nil if userKey may start another run under tier t, or a
// LimitError wrapping ErrLimitExceeded otherwise.
func (s *Store) Check(ctx context.Context, userKey string, t tier.Tier) error {
	limits := tier.LimitsFor(t)
	if limits.VideosPerDay > 0 {
		used, err := s.DailyCount(ctx, userKey)
		if err != nil {
			return err
		}
		if used >= limits.VideosPerDay {
			return &LimitError{Tier: t, Used: used, Limit: limits.VideosPerDay, Window: "day"}
		}
		return nil
	}
	used, err := s.MonthlyCount(ctx, userKey)
	if err != nil {
		return err
	}
	if used >= limits.VideosPerMonth {
		return &LimitError{Tier: t, Used: used, Limit: limits.VideosPerMonth, Window: "month"}
	}
	return nil
}
