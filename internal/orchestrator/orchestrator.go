// Package orchestrator owns the client-side processing flow: one selected
// video through upload, configuration, processing and results. It is the
// single implementation of the session state machine; UIs drive it through
// typed methods instead of ad-hoc handlers.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/pickerapi"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// Step is the orchestrator's current position in the processing flow.
type Step string

const (
	StepUpload     Step = "upload"     // initial; waiting for a file
	StepUploading  Step = "uploading"  // session create + upload in flight
	StepConfigure  Step = "configure"  // uploaded; waiting for options
	StepSubmitting Step = "submitting" // processing start in flight
	StepProcessing Step = "processing" // poll loop running
	StepCompleted  Step = "completed"  // terminal until Reset
	StepFailed     Step = "failed"     // terminal until Reset
)

// SessionAPI is the subset of the service client the orchestrator needs.
type SessionAPI interface {
	CreateSession(ctx context.Context) (*pickerapi.Session, error)
	UploadVideo(ctx context.Context, sessionID string, f pickerapi.File, progress pickerapi.ProgressFunc) error
	StartProcessing(ctx context.Context, sessionID string, opts tier.Options) error
	Status(ctx context.Context, sessionID string) (*pickerapi.SessionStatus, error)
	Results(ctx context.Context, sessionID string) ([]pickerapi.FrameResult, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// FileMeta describes the selected file without holding its content.
type FileMeta struct {
	Name        string
	ContentType string
	Size        int64
}

// Snapshot is a consistent view of orchestrator state for rendering.
type Snapshot struct {
	Step      Step
	SessionID string
	File      *FileMeta
	Options   tier.Options
	Progress  int
	Message   string
	Results   []pickerapi.FrameResult
	Err       error
}

// Deps holds the orchestrator's collaborators.
type Deps struct {
	Client SessionAPI
	Tier   tier.Tier
	Logger zerolog.Logger

	// PollInterval is the fixed wait between sequential status polls.
	// Defaults to 2s.
	PollInterval time.Duration

	// OnUploadProgress receives upload percent updates. Optional.
	OnUploadProgress func(percent int)

	// Notify receives a snapshot after every state change. Optional.
	Notify func(Snapshot)
}

// Orchestrator drives exactly one active session at a time. It is safe
// for concurrent use; the poll loop runs on its own goroutine and is
// fenced by a generation counter so a reset can never be reanimated by a
// late poll response.
type Orchestrator struct {
	mu   sync.Mutex
	deps Deps

	step      Step
	sessionID string
	file      *FileMeta
	options   tier.Options
	progress  int
	message   string
	results   []pickerapi.FrameResult
	err       error

	gen        uint64
	pollCancel context.CancelFunc
	done       chan struct{}
}

// New creates an idle orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 2 * time.Second
	}
	return &Orchestrator{
		deps:    deps,
		step:    StepUpload,
		options: tier.DefaultOptions(),
	}
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	var file *FileMeta
	if o.file != nil {
		f := *o.file
		file = &f
	}
	return Snapshot{
		Step:      o.step,
		SessionID: o.sessionID,
		File:      file,
		Options:   o.options,
		Progress:  o.progress,
		Message:   o.message,
		Results:   append([]pickerapi.FrameResult(nil), o.results...),
		Err:       o.err,
	}
}

// Step returns the current step.
func (o *Orchestrator) Step() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

// Err returns the current user-visible error slot. A new error replaces
// the previous one; there is never more than one at a time.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Done returns a channel closed when the current processing run ends
// (completed, failed, halted or reset). Nil before any Submit.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// SelectFile validates the file against the tier policy, creates a
// session and uploads the content. On success the orchestrator moves to
// StepConfigure; on any failure it returns to StepUpload so the user can
// re-select.
func (o *Orchestrator) SelectFile(ctx context.Context, f pickerapi.File) error {
	o.mu.Lock()
	if o.step != StepUpload {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: cannot select a file during %s", o.step)
	}
	if err := tier.ValidateFile(f.Name, f.ContentType, f.Size, o.deps.Tier); err != nil {
		// Guard failure: stay idle, surface the file error.
		o.err = err
		o.notifyLocked()
		o.mu.Unlock()
		return err
	}
	o.err = nil
	o.file = &FileMeta{Name: f.Name, ContentType: f.ContentType, Size: f.Size}
	gen := o.gen
	o.transitionLocked(StepUploading)
	o.mu.Unlock()

	upload := &UploadController{
		Client:   o.deps.Client,
		Tier:     o.deps.Tier,
		Logger:   o.deps.Logger,
		Progress: o.deps.OnUploadProgress,
	}
	sessionID, err := upload.Upload(ctx, f)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		// Reset won while the upload was in flight; its state stands.
		return context.Canceled
	}
	if err != nil {
		o.file = nil
		o.err = err
		o.transitionLocked(StepUpload)
		return err
	}
	o.sessionID = sessionID
	o.transitionLocked(StepConfigure)
	return nil
}

// Submit clamps the options to the tier policy, starts processing and
// launches the poll loop. On failure the orchestrator returns to
// StepConfigure with session and file retained so the user can retry
// without re-uploading.
func (o *Orchestrator) Submit(ctx context.Context, opts tier.Options) error {
	o.mu.Lock()
	if o.step != StepConfigure {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: cannot submit during %s", o.step)
	}
	opts = tier.ClampOptions(opts, o.deps.Tier)
	o.options = opts
	o.err = nil
	sessionID := o.sessionID
	gen := o.gen
	o.transitionLocked(StepSubmitting)
	o.mu.Unlock()

	if err := o.deps.Client.StartProcessing(ctx, sessionID, opts); err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.gen != gen {
			return context.Canceled
		}
		o.err = err
		o.transitionLocked(StepConfigure)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return context.Canceled
	}
	o.progress = 0
	o.transitionLocked(StepProcessing)

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.pollCancel = cancel
	o.done = make(chan struct{})
	go o.pollLoop(pollCtx, gen, sessionID, o.done)
	return nil
}

// pollLoop issues strictly sequential status polls until the session
// reaches a terminal state, a poll fails, or the run is cancelled. Every
// state mutation re-checks the generation so a reset orchestrator is
// never touched by a stale response.
func (o *Orchestrator) pollLoop(ctx context.Context, gen uint64, sessionID string, done chan struct{}) {
	defer close(done)
	logger := o.deps.Logger.With().Str(log.FieldSessionID, sessionID).Logger()

	timer := time.NewTimer(o.deps.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		status, err := o.deps.Client.Status(ctx, sessionID)

		o.mu.Lock()
		if o.gen != gen {
			o.mu.Unlock()
			return
		}
		if err != nil {
			// Halt polling; the user decides whether to reset. No
			// automatic retry by design.
			o.err = err
			o.notifyLocked()
			o.mu.Unlock()
			logger.Error().Err(err).Str(log.FieldEvent, "poll.halted").Msg("status poll failed, halting")
			return
		}

		if status.Progress > o.progress {
			// Monotonic within one processing episode: server
			// regressions are ignored, not displayed.
			o.progress = status.Progress
			logger.Debug().Int(log.FieldProgress, o.progress).Msg("processing progress")
		}
		if status.Message != "" {
			o.message = status.Message
		}

		switch status.Status {
		case pickerapi.StatusCompleted:
			o.mu.Unlock()
			o.finishCompleted(ctx, gen, sessionID, logger)
			return
		case pickerapi.StatusFailed:
			msg := status.Error
			if msg == "" {
				msg = "processing failed"
			}
			o.err = fmt.Errorf("%s", msg)
			o.transitionLocked(StepFailed)
			o.mu.Unlock()
			logger.Warn().Str(log.FieldEvent, "processing.failed").Str("reason", msg).Msg("processing failed")
			return
		default:
			o.notifyLocked()
			o.mu.Unlock()
		}

		timer.Reset(o.deps.PollInterval)
	}
}

// finishCompleted fetches results exactly once and transitions to
// StepCompleted.
func (o *Orchestrator) finishCompleted(ctx context.Context, gen uint64, sessionID string, logger zerolog.Logger) {
	results, err := o.deps.Client.Results(ctx, sessionID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	if err != nil {
		o.err = err
		o.transitionLocked(StepFailed)
		return
	}
	o.results = results
	o.progress = 100
	o.transitionLocked(StepCompleted)
	logger.Info().
		Str(log.FieldEvent, "processing.completed").
		Int(log.FieldFrameCount, len(results)).
		Msg("processing completed")
}

// Reset returns the orchestrator to StepUpload from any state. The
// server-side session is deleted best-effort; failures are logged, never
// surfaced. Idempotent.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.mu.Lock()
	o.gen++
	if o.pollCancel != nil {
		o.pollCancel()
		o.pollCancel = nil
	}
	sessionID := o.sessionID
	o.sessionID = ""
	o.file = nil
	o.options = tier.DefaultOptions()
	o.progress = 0
	o.message = ""
	o.results = nil
	o.err = nil
	o.done = nil
	o.transitionLocked(StepUpload)
	o.mu.Unlock()

	if sessionID == "" {
		return
	}
	logger := o.deps.Logger
	client := o.deps.Client
	go func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := client.DeleteSession(cleanupCtx, sessionID); err != nil {
			logger.Warn().
				Err(err).
				Str(log.FieldSessionID, sessionID).
				Str(log.FieldEvent, "session.cleanup_failed").
				Msg("session cleanup failed")
		}
	}()
}

// Cancel is the user-facing escape affordance; it is equivalent to Reset.
func (o *Orchestrator) Cancel(ctx context.Context) {
	o.Reset(ctx)
}

func (o *Orchestrator) transitionLocked(next Step) {
	if o.step != next {
		o.deps.Logger.Debug().
			Str(log.FieldOldState, string(o.step)).
			Str(log.FieldNewState, string(next)).
			Msg("step transition")
	}
	o.step = next
	o.notifyLocked()
}

func (o *Orchestrator) notifyLocked() {
	if o.deps.Notify != nil {
		o.deps.Notify(o.snapshotLocked())
	}
}
