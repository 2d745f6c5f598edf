package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/metrics"
	"github.com/GrzywN/frame-picker-sub000/internal/session"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
	"github.com/GrzywN/frame-picker-sub000/internal/usage"
)

// UsageRecorder is the accounting subset the runner needs. Completed
// runs consume quota; failed runs do not.
type UsageRecorder interface {
	RecordCompleted(ctx context.Context, userKey string, t tier.Tier, sessionID string, frameCount int) error
}

// Deps holds the runner's collaborators.
type Deps struct {
	Store    session.Store
	Usage    UsageRecorder
	Pipeline Pipeline
	Logger   zerolog.Logger

	// DataDir is the root under which per-session work and results
	// directories are created.
	DataDir string

	// MaxJobs bounds concurrently running pipelines. Defaults to 4.
	MaxJobs int64
}

// Runner executes processing jobs in the background. Submit returns as
// soon as the job goroutine is scheduled; progress flows through the
// session store.
type Runner struct {
	deps Deps
	sem  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner ready to accept jobs.
func NewRunner(deps Deps) *Runner {
	if deps.MaxJobs <= 0 {
		deps.MaxJobs = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		deps:   deps,
		sem:    semaphore.NewWeighted(deps.MaxJobs),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules processing for an uploaded session. The job runs on
// the runner's own context so it survives the submitting request.
func (r *Runner) Submit(sess *session.Session) error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("worker: runner stopped: %w", err)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.fail(sess.ID, "processing was cancelled before it started")
			return
		}
		defer r.sem.Release(1)
		r.run(sess)
	}()
	return nil
}

// Stop cancels running jobs and waits for them to finish or for ctx to
// expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: jobs still running at shutdown: %w", ctx.Err())
	}
}

func (r *Runner) run(sess *session.Session) {
	ctx := log.ContextWithJobID(log.ContextWithSessionID(r.ctx, sess.ID), uuid.NewString())
	logger := log.WithContext(ctx, r.deps.Logger).With().
		Str(log.FieldTier, string(sess.Tier)).
		Logger()
	start := time.Now()

	r.update(sess.ID, 10, "Starting video analysis...")

	job := Job{
		SessionID:  sess.ID,
		VideoPath:  sess.VideoPath,
		WorkDir:    filepath.Join(r.deps.DataDir, sess.ID, "work"),
		ResultsDir: filepath.Join(r.deps.DataDir, sess.ID, "results"),
		Tier:       sess.Tier,
		Options:    sess.Options,
	}
	frames, err := r.deps.Pipeline.Process(ctx, job, func(progress int, message string) {
		r.update(sess.ID, progress, message)
	})
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "job.failed").Msg("processing failed")
		metrics.JobsTotal.WithLabelValues(string(sess.Tier), "failed").Inc()
		r.fail(sess.ID, err.Error())
		return
	}

	current, err := r.deps.Store.Get(ctx, sess.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("session vanished before completion")
		return
	}
	current.Status = session.StatusCompleted
	current.Progress = 100
	current.Message = fmt.Sprintf("Processing completed successfully. Found %d frame(s).", len(frames))
	current.Error = ""
	current.Frames = frames
	if err := r.deps.Store.Put(ctx, current); err != nil {
		logger.Error().Err(err).Msg("failed to store completion")
		return
	}

	if r.deps.Usage != nil {
		if err := r.deps.Usage.RecordCompleted(ctx, current.UserKey, current.Tier, current.ID, len(frames)); err != nil {
			logger.Warn().Err(err).Msg("usage recording failed")
		}
	}

	metrics.JobsTotal.WithLabelValues(string(sess.Tier), "completed").Inc()
	metrics.JobDuration.WithLabelValues(string(sess.Tier)).Observe(time.Since(start).Seconds())
	metrics.FramesSelected.Observe(float64(len(frames)))

	logger.Info().
		Str(log.FieldEvent, "job.completed").
		Int(log.FieldFrameCount, len(frames)).
		Dur("duration", time.Since(start)).
		Msg("processing completed")
}

// update writes a progress checkpoint. Store failures are logged and
// swallowed: the job itself is still making progress.
func (r *Runner) update(sessionID string, progress int, message string) {
	sess, err := r.deps.Store.Get(r.ctx, sessionID)
	if err != nil {
		r.deps.Logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("progress update dropped")
		return
	}
	sess.Status = session.StatusProcessing
	sess.Progress = progress
	sess.Message = message
	if err := r.deps.Store.Put(r.ctx, sess); err != nil {
		r.deps.Logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("progress update dropped")
	}
}

func (r *Runner) fail(sessionID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	sess, err := r.deps.Store.Get(ctx, sessionID)
	if err != nil {
		return
	}
	sess.Status = session.StatusFailed
	sess.Error = reason
	if err := r.deps.Store.Put(ctx, sess); err != nil {
		r.deps.Logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("failure update dropped")
	}
}

// compile-time check that the sqlite store satisfies the recorder.
var _ UsageRecorder = (*usage.Store)(nil)
