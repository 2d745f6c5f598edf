package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrzywN/frame-picker-sub000/internal/extract"
	"github.com/GrzywN/frame-picker-sub000/internal/session"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

type stubPipeline struct {
	frames []session.Frame
	err    error
	delay  time.Duration

	mu      sync.Mutex
	reports []string
}

func (p *stubPipeline) Process(ctx context.Context, job Job, report ReportFunc) ([]session.Frame, error) {
	wrapped := func(progress int, message string) {
		p.mu.Lock()
		p.reports = append(p.reports, fmt.Sprintf("%d:%s", progress, message))
		p.mu.Unlock()
		report(progress, message)
	}
	wrapped(20, "Extracting frames from video...")
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	wrapped(50, "Analyzing 12 frames...")
	wrapped(80, "Saving selected frames...")
	return p.frames, nil
}

type recordedUsage struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordedUsage) RecordCompleted(_ context.Context, userKey string, _ tier.Tier, sessionID string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, userKey+"/"+sessionID)
	return nil
}

func (r *recordedUsage) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func uploadedSession(id string) *session.Session {
	return &session.Session{
		ID:      id,
		Status:  session.StatusUploaded,
		Tier:    tier.Free,
		Options: tier.DefaultOptions(),
		UserKey: "u1",
	}
}

func newRunner(t *testing.T, p Pipeline, u UsageRecorder) (*Runner, session.Store) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { _ = store.Close() })
	r := NewRunner(Deps{
		Store:    store,
		Usage:    u,
		Pipeline: p,
		Logger:   zerolog.Nop(),
		DataDir:  t.TempDir(),
		MaxJobs:  2,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return r, store
}

func waitStatus(t *testing.T, store session.Store, id string, want session.Status) *session.Session {
	t.Helper()
	var got *session.Session
	require.Eventually(t, func() bool {
		s, err := store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = s
		return s.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestRunnerCompletesJob(t *testing.T) {
	pipeline := &stubPipeline{frames: []session.Frame{
		{Index: 0, Score: 0.9, Timestamp: 1.5},
		{Index: 1, Score: 0.8, Timestamp: 4.0},
	}}
	usage := &recordedUsage{}
	r, store := newRunner(t, pipeline, usage)

	sess := uploadedSession("s1")
	require.NoError(t, store.Put(context.Background(), sess))
	require.NoError(t, r.Submit(sess))

	got := waitStatus(t, store, "s1", session.StatusCompleted)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "Processing completed successfully. Found 2 frame(s).", got.Message)
	assert.Len(t, got.Frames, 2)
	assert.Equal(t, 1, usage.count())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunnerLogsCarrySessionAndJobIDs(t *testing.T) {
	buf := &syncBuffer{}
	logger := zerolog.New(buf)

	store := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { _ = store.Close() })
	r := NewRunner(Deps{
		Store:    store,
		Usage:    &recordedUsage{},
		Pipeline: &stubPipeline{frames: []session.Frame{{Index: 0, Score: 0.9}}},
		Logger:   logger,
		DataDir:  t.TempDir(),
		MaxJobs:  1,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})

	sess := uploadedSession("s-logs")
	require.NoError(t, store.Put(context.Background(), sess))
	require.NoError(t, r.Submit(sess))
	waitStatus(t, store, "s-logs", session.StatusCompleted)

	out := buf.String()
	assert.Contains(t, out, `"session_id":"s-logs"`)
	assert.Contains(t, out, `"job_id":"`)
	assert.Contains(t, out, "job.completed")
}

func TestRunnerReportsCheckpoints(t *testing.T) {
	pipeline := &stubPipeline{frames: []session.Frame{{Index: 0}}}
	r, store := newRunner(t, pipeline, nil)

	sess := uploadedSession("s1")
	require.NoError(t, store.Put(context.Background(), sess))
	require.NoError(t, r.Submit(sess))
	waitStatus(t, store, "s1", session.StatusCompleted)

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	assert.Equal(t, []string{
		"20:Extracting frames from video...",
		"50:Analyzing 12 frames...",
		"80:Saving selected frames...",
	}, pipeline.reports)
}

func TestRunnerMarksFailure(t *testing.T) {
	pipeline := &stubPipeline{err: fmt.Errorf("no frames could be extracted from the video")}
	usage := &recordedUsage{}
	r, store := newRunner(t, pipeline, usage)

	sess := uploadedSession("s1")
	require.NoError(t, store.Put(context.Background(), sess))
	require.NoError(t, r.Submit(sess))

	got := waitStatus(t, store, "s1", session.StatusFailed)
	assert.Equal(t, "no frames could be extracted from the video", got.Error)
	assert.Equal(t, 0, usage.count(), "failed runs do not consume quota")
}

func TestRunnerRejectsAfterStop(t *testing.T) {
	r, store := newRunner(t, &stubPipeline{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	sess := uploadedSession("s1")
	require.NoError(t, store.Put(context.Background(), sess))
	assert.Error(t, r.Submit(sess))
}

func TestRunnerStopCancelsRunningJob(t *testing.T) {
	pipeline := &stubPipeline{delay: 10 * time.Second}
	r, store := newRunner(t, pipeline, nil)

	sess := uploadedSession("s1")
	require.NoError(t, store.Put(context.Background(), sess))
	require.NoError(t, r.Submit(sess))
	waitStatus(t, store, "s1", session.StatusProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))

	got := waitStatus(t, store, "s1", session.StatusFailed)
	assert.NotEmpty(t, got.Error)
}

func TestSaveFramesWritesOneBasedFilenames(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 160, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 160; x++ {
			img.Set(x, y, color.Gray{Y: uint8((x * y) % 255)})
		}
	}
	candPath := filepath.Join(dir, "cand.jpg")
	f, err := os.Create(candPath)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	require.NoError(t, f.Close())

	selected := []extract.Scored{
		{Frame: extract.Frame{Number: 0, Timestamp: 0.5, Path: candPath}, Score: 0.7, Width: 160, Height: 90},
		{Frame: extract.Frame{Number: 30, Timestamp: 2.5, Path: candPath}, Score: 0.6, Width: 160, Height: 90},
	}
	resultsDir := filepath.Join(dir, "results")
	frames, err := saveFrames(selected, resultsDir, tier.Pro)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, 0, frames[0].Index)
	assert.Equal(t, filepath.Join(resultsDir, "frame_01.jpg"), frames[0].Path)
	assert.Equal(t, filepath.Join(resultsDir, "frame_02.jpg"), frames[1].Path)
	assert.Positive(t, frames[0].FileSize)

	_, err = os.Stat(frames[1].Path)
	assert.NoError(t, err)
}
