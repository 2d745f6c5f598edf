package config

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.MaxJobs)
	assert.NotEmpty(t, cfg.DataDir)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("FRAMEPICKER_LISTEN", ":9999")
	t.Setenv("FRAMEPICKER_MAX_JOBS", "2")
	t.Setenv("FRAMEPICKER_SESSION_TTL", "2h")
	t.Setenv("FRAMEPICKER_REDIS_ADDR", "localhost:6379")

	cfg := FromEnv()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 2, cfg.MaxJobs)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FRAMEPICKER_MAX_JOBS", "not-a-number")
	t.Setenv("FRAMEPICKER_SESSION_TTL", "soon")

	cfg := FromEnv()
	assert.Equal(t, 4, cfg.MaxJobs)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestTrustedProxyNets(t *testing.T) {
	var cfg AppConfig
	nets, err := cfg.TrustedProxyNets()
	require.NoError(t, err)
	assert.Nil(t, nets)

	cfg.TrustedProxies = "10.0.0.0/8, 192.0.2.1"
	nets, err = cfg.TrustedProxyNets()
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.True(t, nets[0].Contains(net.ParseIP("10.1.2.3")))
	assert.True(t, nets[1].Contains(net.ParseIP("192.0.2.1")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.0.2.2")))

	cfg.TrustedProxies = "not-a-cidr"
	_, err = cfg.TrustedProxyNets()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"ok", func(*AppConfig) {}, ""},
		{"empty listen", func(c *AppConfig) { c.ListenAddr = "" }, "listen address"},
		{"empty data dir", func(c *AppConfig) { c.DataDir = "" }, "data directory"},
		{"zero jobs", func(c *AppConfig) { c.MaxJobs = 0 }, "max jobs"},
		{"tiny ttl", func(c *AppConfig) { c.SessionTTL = time.Second }, "session TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestUsageDBPathDefaultsUnderDataDir(t *testing.T) {
	cfg := AppConfig{DataDir: "/var/lib/fp"}
	assert.Equal(t, "/var/lib/fp/usage.db", cfg.UsageDBPath())

	cfg.UsageDB = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.UsageDBPath())
}
