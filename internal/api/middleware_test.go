package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCIDR(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(cidr)
	require.NoError(t, err)
	return n
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{
			name:       "no proxies configured ignores forwarded header",
			remoteAddr: "203.0.113.7:55100",
			forwarded:  "198.51.100.4",
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted peer ignores forwarded header",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "203.0.113.7:55100",
			forwarded:  "198.51.100.4",
			want:       "203.0.113.7",
		},
		{
			name:       "trusted peer uses forwarded client",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:443",
			forwarded:  "198.51.100.4",
			want:       "198.51.100.4",
		},
		{
			name:       "chain walks past trusted hops",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:443",
			forwarded:  "198.51.100.4, 10.9.9.9",
			want:       "198.51.100.4",
		},
		{
			name:       "all hops trusted falls back to peer",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:443",
			forwarded:  "10.9.9.9",
			want:       "10.1.2.3",
		},
		{
			name:       "trusted peer without forwarded header",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:443",
			want:       "10.1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nets []*net.IPNet
			for _, c := range tt.trusted {
				nets = append(nets, mustCIDR(t, c))
			}
			s := New(Deps{TrustedProxies: nets})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, s.clientIP(r))
		})
	}
}

func TestUserKeyPrefersHeader(t *testing.T) {
	s := New(Deps{})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:55100"
	r.Header.Set("X-Frame-Picker-User", "user-42")
	assert.Equal(t, "user-42", s.userKeyFrom(r))
}

func TestAnonymousQuotaKeyHonorsTrustedProxy(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.TrustedProxies = []*net.IPNet{mustCIDR(t, "127.0.0.0/8")}
	})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	sess, err := ts.store.Get(context.Background(), body.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "anon:198.51.100.4", sess.UserKey)
}
