// Package pickerapi is the HTTP client for the Frame Picker processing
// service. All operations are single network calls with no automatic
// retry; the caller decides how to react to failures.
package pickerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// ProgressFunc receives upload progress in percent (0-100).
type ProgressFunc func(percent int)

// File describes a selected video file and its content.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Client talks to one processing service instance.
type Client struct {
	base string
	http *http.Client

	// rampInterval drives the synthetic upload progress ramp. The default
	// transport exposes no transfer progress, so a timer advances a
	// synthetic value to 90% and snaps to 100% on success.
	rampInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRampInterval changes the synthetic upload progress tick. Useful in
// tests to keep them fast.
func WithRampInterval(d time.Duration) Option {
	return func(c *Client) { c.rampInterval = d }
}

// New creates a client for the service at base, e.g. "http://localhost:8000".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:         strings.TrimRight(base, "/"),
		http:         &http.Client{Timeout: 30 * time.Second},
		rampInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession asks the service for a fresh session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/sessions", nil)
	if err != nil {
		return nil, wrap("create session", ErrSessionCreate, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, wrap("create session", ErrSessionCreate, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return nil, httpErr("create session", ErrSessionCreate, res)
	}
	var s Session
	if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
		return nil, wrap("create session", ErrSessionCreate, err)
	}
	if s.SessionID == "" {
		return nil, &APIError{Sentinel: ErrSessionCreate, Operation: "create session", Body: "empty session id"}
	}
	return &s, nil
}

// UploadVideo sends the selected file as multipart form field "video".
// Progress is reported through the synthetic ramp: +10 per tick up to 90,
// then 100 on success. A nil progress function is allowed.
func (c *Client) UploadVideo(ctx context.Context, sessionID string, f File, progress ProgressFunc) error {
	if progress == nil {
		progress = func(int) {}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("video", f.Name)
	if err != nil {
		return wrap("upload video", ErrUpload, err)
	}
	if _, err := io.Copy(part, f.Reader); err != nil {
		return wrap("upload video", ErrUpload, err)
	}
	if err := mw.Close(); err != nil {
		return wrap("upload video", ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/upload", c.base, sessionID), &body)
	if err != nil {
		return wrap("upload video", ErrUpload, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	stop := c.startRamp(ctx, progress)
	res, err := c.http.Do(req)
	stop()
	if err != nil {
		return wrap("upload video", ErrUpload, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return httpErr("upload video", ErrUpload, res)
	}
	progress(100)
	return nil
}

// startRamp advances a synthetic progress value until stopped. The returned
// function is safe to call exactly once.
func (c *Client) startRamp(ctx context.Context, progress ProgressFunc) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(c.rampInterval)
		defer ticker.Stop()
		pct := 0
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pct < 90 {
					pct += 10
					progress(pct)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// StartProcessing submits the processing options for an uploaded session.
// Options should already be clamped to the caller's tier; the service
// clamps again server-side.
func (c *Client) StartProcessing(ctx context.Context, sessionID string, opts tier.Options) error {
	payload := processRequest{
		Mode:       string(opts.Mode),
		Quality:    string(opts.Quality),
		Count:      opts.Count,
		SampleRate: opts.SampleRate,
	}
	if opts.Count > 1 {
		interval := opts.MinInterval
		payload.MinInterval = &interval
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return wrap("start processing", ErrProcessingStart, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/process", c.base, sessionID), bytes.NewReader(body))
	if err != nil {
		return wrap("start processing", ErrProcessingStart, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return wrap("start processing", ErrProcessingStart, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return httpErr("start processing", ErrProcessingStart, res)
	}
	return nil
}

// Status fetches the current session status. Single-shot; the caller owns
// the repeat schedule.
func (c *Client) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%s/status", c.base, sessionID), nil)
	if err != nil {
		return nil, wrap("poll status", ErrPoll, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, wrap("poll status", ErrPoll, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return nil, httpErr("poll status", ErrPoll, res)
	}
	var s SessionStatus
	if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
		return nil, wrap("poll status", ErrPoll, err)
	}
	return &s, nil
}

// Results fetches the extracted frames for a completed session, ordered by
// frame index.
func (c *Client) Results(ctx context.Context, sessionID string) ([]FrameResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%s/results", c.base, sessionID), nil)
	if err != nil {
		return nil, wrap("fetch results", ErrResults, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, wrap("fetch results", ErrResults, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return nil, httpErr("fetch results", ErrResults, res)
	}
	var results []FrameResult
	if err := json.NewDecoder(res.Body).Decode(&results); err != nil {
		return nil, wrap("fetch results", ErrResults, err)
	}
	return results, nil
}

// DownloadFrame fetches the raw JPEG bytes for one frame.
func (c *Client) DownloadFrame(ctx context.Context, sessionID string, frameIndex int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%s/download/%d", c.base, sessionID, frameIndex), nil)
	if err != nil {
		return nil, wrap("download frame", ErrDownload, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, wrap("download frame", ErrDownload, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return nil, httpErr("download frame", ErrDownload, res)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, wrap("download frame", ErrDownload, err)
	}
	return data, nil
}

// DeleteSession removes the session server-side. Cleanup is advisory;
// callers log failures instead of surfacing them.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/sessions/%s", c.base, sessionID), nil)
	if err != nil {
		return wrap("delete session", ErrSessionDelete, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return wrap("delete session", ErrSessionDelete, err)
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return httpErr("delete session", ErrSessionDelete, res)
	}
	return nil
}

func wrap(op string, sentinel, err error) error {
	return &APIError{Sentinel: sentinel, Operation: op, Err: err}
}

func httpErr(op string, sentinel error, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return &APIError{
		Sentinel:  sentinel,
		Operation: op,
		Status:    res.StatusCode,
		Body:      strings.TrimSpace(string(body)),
	}
}

// discard drains and closes the response body so connections are reused.
func discard(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
}
