// Package session holds the server-side processing session model and
// its stores. Sessions are short-lived: they exist from upload until the
// TTL sweeps them away.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated    Status = "created"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session: not found")

// Frame is one selected frame with its on-disk location.
type Frame struct {
	Index     int     `json:"index"`
	Score     float64 `json:"score"`
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FileSize  int64   `json:"file_size"`
	Path      string  `json:"path"`
}

// Session is the full server-side state of one processing session.
type Session struct {
	ID        string       `json:"id"`
	Status    Status       `json:"status"`
	Progress  int          `json:"progress"`
	Message   string       `json:"message"`
	Error     string       `json:"error,omitempty"`
	Tier      tier.Tier    `json:"tier"`
	Options   tier.Options `json:"options"`
	UserKey   string       `json:"user_key"`
	VideoPath string       `json:"video_path,omitempty"`
	VideoName string       `json:"video_name,omitempty"`
	VideoSize int64        `json:"video_size,omitempty"`
	Frames    []Frame      `json:"frames,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Store persists sessions for their lifetime.
type Store interface {
	// Put writes the session, refreshing its TTL.
	Put(ctx context.Context, s *Session) error
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
