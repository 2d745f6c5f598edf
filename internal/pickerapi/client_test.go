package pickerapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

func newTestClient(base string) *Client {
	return New(base,
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
		WithRampInterval(5*time.Millisecond),
	)
}

func TestCreateSession(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	c := newTestClient(mock.URL)
	s, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, StatusCreated, s.Status)
}

func TestCreateSession5xx(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.FailNext("create", 1)

	c := newTestClient(mock.URL)
	_, err := c.CreateSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionCreate))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestCreateSessionEmptyID(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "created"})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.CreateSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionCreate))
}

func TestUploadVideoReportsProgress(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	c := newTestClient(mock.URL)
	s, err := c.CreateSession(context.Background())
	require.NoError(t, err)

	var seen []int
	err = c.UploadVideo(context.Background(), s.SessionID, File{
		Name:        "clip.mp4",
		ContentType: "video/mp4",
		Size:        9,
		Reader:      strings.NewReader("fakevideo"),
	}, func(p int) { seen = append(seen, p) })
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	// Monotonic and never above 100.
	prev := 0
	for _, p := range seen {
		assert.GreaterOrEqual(t, p, prev)
		assert.LessOrEqual(t, p, 100)
		prev = p
	}
}

func TestUploadVideoFailure(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.FailNext("upload", 1)

	c := newTestClient(mock.URL)
	err := c.UploadVideo(context.Background(), "mock-session-1", File{
		Name: "clip.mp4", ContentType: "video/mp4", Reader: strings.NewReader("x"),
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpload))
}

func TestStartProcessingOmitsMinIntervalForSingleFrame(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	c := newTestClient(mock.URL)
	opts := tier.DefaultOptions() // count == 1
	require.NoError(t, c.StartProcessing(context.Background(), "s1", opts))
	assert.NotContains(t, mock.LastBody("process"), "min_interval")

	opts.Count = 3
	require.NoError(t, c.StartProcessing(context.Background(), "s1", opts))
	body := mock.LastBody("process")
	assert.Contains(t, body, "min_interval")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "profile", payload["mode"])
	assert.Equal(t, float64(3), payload["count"])
	assert.Equal(t, float64(30), payload["sample_rate"])
}

func TestStatusClampsProgress(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"session_id":"s1","status":"processing","progress":250,"message":"hi"}`))
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	st, err := c.Status(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 100, st.Progress)
}

func TestStatusClampsNegativeProgress(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"session_id":"s1","status":"processing","progress":-5}`))
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	st, err := c.Status(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Progress)
}

func TestStatusInvalidJSON(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not-json"))
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.Status(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoll))
}

func TestResults(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.SetResults(
		FrameResult{FrameIndex: 0, Score: 0.9, Timestamp: 1.0},
		FrameResult{FrameIndex: 1, Score: 0.7, Timestamp: 5.5},
	)

	c := newTestClient(mock.URL)
	results, err := c.Results(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].FrameIndex)
	assert.InDelta(t, 5.5, results[1].Timestamp, 1e-9)
}

func TestDownloadFrame(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.SetFrame(2, []byte("jpegbytes"))

	c := newTestClient(mock.URL)
	data, err := c.DownloadFrame(context.Background(), "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), data)

	_, err = c.DownloadFrame(context.Background(), "s1", 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownload))
}

func TestDeleteSession(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	c := newTestClient(mock.URL)
	require.NoError(t, c.DeleteSession(context.Background(), "gone"))
	assert.Equal(t, []string{"gone"}, mock.Deleted())
}

func TestContextCancellationStopsCalls(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := newTestClient(s.URL)
	_, err := c.Status(ctx, "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoll))
}
