// Package api serves the frame-picker HTTP contract: session lifecycle,
// video upload, processing, status polling, results and frame download.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/GrzywN/frame-picker-sub000/internal/health"
	"github.com/GrzywN/frame-picker-sub000/internal/presign"
	"github.com/GrzywN/frame-picker-sub000/internal/session"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// JobSubmitter schedules background processing for an uploaded session.
type JobSubmitter interface {
	Submit(sess *session.Session) error
}

// UsageChecker gates processing on the tier quota.
type UsageChecker interface {
	Check(ctx context.Context, userKey string, t tier.Tier) error
}

// Deps holds the server's collaborators.
type Deps struct {
	Store   session.Store
	Usage   UsageChecker // nil disables quota enforcement
	Jobs    JobSubmitter
	Health  *health.Manager
	Presign *presign.Service // nil disables the presign endpoint
	Logger  zerolog.Logger

	// DataDir is where uploads and results live, one directory per
	// session.
	DataDir string

	// RequestsPerMinute is the per-IP rate limit; <=0 disables it.
	RequestsPerMinute int

	// TrustedProxies lists networks whose X-Forwarded-For header is
	// believed when deriving the client IP for rate limiting and
	// anonymous quota keys. Empty means the direct peer is the client.
	TrustedProxies []*net.IPNet
}

// Server is the frame-picker HTTP API.
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates a server around deps.
func New(deps Deps) *Server {
	return &Server{deps: deps, logger: deps.Logger}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(requestID)
	r.Use(httpMetrics)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.deps.RequestsPerMinute > 0 {
			r.Use(httprate.Limit(
				s.deps.RequestsPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return s.clientIP(r), nil
				}),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				}),
			))
		}

		if s.deps.Presign != nil {
			r.Post("/uploads/presign", s.handlePresign)
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/upload", s.handleUpload)
				r.Post("/process", s.handleProcess)
				r.Get("/status", s.handleStatus)
				r.Get("/results", s.handleResults)
				r.Get("/download/{frameIndex}", s.handleDownload)
			})
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Health.Health(r.Context()))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := s.deps.Health.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
