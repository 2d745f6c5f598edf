// Package health provides liveness and readiness checks for the daemon,
// suitable for Docker HEALTHCHECK and Kubernetes probes.
package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Status is a component or overall health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the body served on the health and readiness endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one named component check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager aggregates component checks into one readiness verdict.
type Manager struct {
	version  string
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version}
}

func (m *Manager) Register(c Checker) {
	m.checkers = append(m.checkers, c)
}

// Health is the liveness verdict: the process is up.
func (m *Manager) Health(context.Context) Response {
	return Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
	}
}

// Ready runs every registered check. Any unhealthy component makes the
// service not ready; degraded components are reported but do not block.
func (m *Manager) Ready(ctx context.Context) Response {
	resp := Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(m.checkers)),
	}
	for _, c := range m.checkers {
		result := c.Check(ctx)
		resp.Checks[c.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
			resp.Ready = false
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}
	return resp
}

// Pinger covers the session and usage stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports whether a backing store answers pings.
type StoreChecker struct {
	Component string
	Store     Pinger
}

func (c *StoreChecker) Name() string { return c.Component }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Store.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// DirChecker verifies a writable data directory.
type DirChecker struct {
	Component string
	Path      string
}

func (c *DirChecker) Name() string { return c.Component }

func (c *DirChecker) Check(context.Context) CheckResult {
	info, err := os.Stat(c.Path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("%s is not a directory", c.Path)}
	}
	probe, err := os.CreateTemp(c.Path, ".healthcheck-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return CheckResult{Status: StatusHealthy}
}

// BinaryChecker verifies an external tool is present. A missing ffmpeg
// degrades rather than kills readiness: sessions can still be created
// and uploads accepted, only processing would fail.
type BinaryChecker struct {
	Component string
	Path      string
}

func (c *BinaryChecker) Name() string { return c.Component }

func (c *BinaryChecker) Check(context.Context) CheckResult {
	path := c.Path
	if path == "" {
		path = c.Component
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: resolved}
}
