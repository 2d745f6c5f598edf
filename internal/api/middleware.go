package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/metrics"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// tierHeader carries the caller's tier claim. Auth integration supplies
// it upstream; absent or unknown values fall back to anonymous.
const tierHeader = "X-Frame-Picker-Tier"

// userHeader identifies the caller for quota accounting. Anonymous
// callers are keyed by client IP.
const userHeader = "X-Frame-Picker-User"

func tierFrom(r *http.Request) tier.Tier {
	return tier.Parse(r.Header.Get(tierHeader))
}

func (s *Server) userKeyFrom(r *http.Request) string {
	if user := r.Header.Get(userHeader); user != "" {
		return user
	}
	return "anon:" + s.clientIP(r)
}

// clientIP returns the originating client address. X-Forwarded-For is
// honored only when the direct peer is a configured trusted proxy; the
// chain is walked right to left and the first hop outside the trusted
// networks wins.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.trustedPeer(host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.trustedPeer(hop) {
			return hop
		}
	}
	return host
}

func (s *Server) trustedPeer(addr string) bool {
	if len(s.deps.TrustedProxies) == 0 {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range s.deps.TrustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// requestID attaches a request id to the context and response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str(log.FieldRequestID, w.Header().Get("X-Request-Id")).
			Msg("request")
	})
}

// httpMetrics records request counts and latency per route pattern.
func httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// recoverer converts panics into 500s instead of dropped connections.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
