// Package config loads Frame Picker configuration from the environment.
//
// Precedence is ENV over built-in defaults. All variables carry the
// FRAMEPICKER_ prefix.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppConfig holds the full daemon configuration.
type AppConfig struct {
	// HTTP
	ListenAddr string
	// TrustedProxies is a comma-separated list of CIDRs allowed to set
	// X-Forwarded-For.
	TrustedProxies string

	// Storage
	DataDir       string // uploads and extracted frames
	UsageDB       string // sqlite usage accounting database
	RedisAddr     string // empty means in-memory session store
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// Processing
	FFmpegPath  string
	FFprobePath string
	MaxJobs     int // concurrent processing jobs

	// Rate limiting
	RequestsPerMinute int

	// Presigned uploads. The endpoint is disabled when the secret is empty.
	PresignSecret  string
	PresignBaseURL string

	// Logging
	LogLevel string
}

// FromEnv builds an AppConfig from environment variables with defaults
// suitable for local development.
func FromEnv() AppConfig {
	return AppConfig{
		ListenAddr:        ParseString("FRAMEPICKER_LISTEN", ":8000"),
		TrustedProxies:    ParseString("FRAMEPICKER_TRUSTED_PROXIES", ""),
		DataDir:           ParseString("FRAMEPICKER_DATA", defaultDataDir()),
		UsageDB:           ParseString("FRAMEPICKER_USAGE_DB", ""),
		RedisAddr:         ParseString("FRAMEPICKER_REDIS_ADDR", ""),
		RedisPassword:     ParseString("FRAMEPICKER_REDIS_PASSWORD", ""),
		RedisDB:           ParseInt("FRAMEPICKER_REDIS_DB", 0),
		SessionTTL:        ParseDuration("FRAMEPICKER_SESSION_TTL", 24*time.Hour),
		FFmpegPath:        ParseString("FRAMEPICKER_FFMPEG", "ffmpeg"),
		FFprobePath:       ParseString("FRAMEPICKER_FFPROBE", "ffprobe"),
		MaxJobs:           ParseInt("FRAMEPICKER_MAX_JOBS", 4),
		RequestsPerMinute: ParseInt("FRAMEPICKER_REQUESTS_PER_MINUTE", 120),
		PresignSecret:     ParseString("FRAMEPICKER_PRESIGN_SECRET", ""),
		PresignBaseURL:    ParseString("FRAMEPICKER_PRESIGN_BASE_URL", "http://localhost:8000"),
		LogLevel:          ParseString("FRAMEPICKER_LOG_LEVEL", "info"),
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data directory must not be empty")
	}
	if c.MaxJobs < 1 {
		return fmt.Errorf("config: max jobs must be at least 1, got %d", c.MaxJobs)
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("config: session TTL %s is below the 1m minimum", c.SessionTTL)
	}
	return nil
}

// TrustedProxyNets parses the TrustedProxies list into networks. Bare
// addresses are treated as single-host networks.
func (c AppConfig) TrustedProxyNets() ([]*net.IPNet, error) {
	raw := strings.TrimSpace(c.TrustedProxies)
	if raw == "" {
		return nil, nil
	}
	var nets []*net.IPNet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				part = fmt.Sprintf("%s/%d", part, bits)
			}
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("config: invalid trusted proxy %q: %w", part, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// UsageDBPath returns the configured usage database path, defaulting to
// a file inside the data directory.
func (c AppConfig) UsageDBPath() string {
	if c.UsageDB != "" {
		return c.UsageDB
	}
	return filepath.Join(c.DataDir, "usage.db")
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "frame-picker")
	}
	return filepath.Join(os.TempDir(), "frame-picker")
}
