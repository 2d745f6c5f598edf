// Package results turns completed processing sessions into files on
// disk. Frame naming is 1-based regardless of the service's 0-based
// frame indexes.
package results

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/pickerapi"
)

// FrameDownloader is the client subset the presenter needs.
type FrameDownloader interface {
	DownloadFrame(ctx context.Context, sessionID string, frameIndex int) ([]byte, error)
}

// Saver persists one downloaded frame under the given name.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) error
}

// DirSaver writes frames into a directory, creating it on first use.
type DirSaver struct {
	Dir string
}

func (d *DirSaver) Save(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("results: create dir: %w", err)
	}
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("results: write %s: %w", name, err)
	}
	return nil
}

// FrameName returns the user-facing filename for a frame. Indexes are
// 0-based on the wire and 1-based in filenames.
func FrameName(frameIndex int) string {
	return fmt.Sprintf("frame_%d.jpg", frameIndex+1)
}

// Presenter downloads result frames one at a time. DownloadAll staggers
// requests so a burst of frames does not hammer the service.
type Presenter struct {
	Client FrameDownloader
	Saver  Saver
	Logger zerolog.Logger

	// Stagger is the minimum spacing between consecutive downloads in
	// DownloadAll. Defaults to 500ms.
	Stagger time.Duration
}

// DownloadOne fetches a single frame and saves it.
func (p *Presenter) DownloadOne(ctx context.Context, sessionID string, frame pickerapi.FrameResult) error {
	data, err := p.Client.DownloadFrame(ctx, sessionID, frame.FrameIndex)
	if err != nil {
		return err
	}
	name := FrameName(frame.FrameIndex)
	if err := p.Saver.Save(ctx, name, data); err != nil {
		return err
	}
	p.Logger.Info().
		Str(log.FieldSessionID, sessionID).
		Int(log.FieldFrameIndex, frame.FrameIndex).
		Str(log.FieldPath, name).
		Msg("frame saved")
	return nil
}

// DownloadAll fetches every frame sequentially. A failed frame is logged
// and skipped; the remaining frames are still downloaded. The returned
// error aggregates the per-frame failures. An empty result set is a
// no-op.
func (p *Presenter) DownloadAll(ctx context.Context, sessionID string, frames []pickerapi.FrameResult) ([]string, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	stagger := p.Stagger
	if stagger <= 0 {
		stagger = 500 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(stagger), 1)

	var saved []string
	var errs []error
	for _, frame := range frames {
		if err := limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.DownloadOne(ctx, sessionID, frame); err != nil {
			p.Logger.Warn().
				Err(err).
				Str(log.FieldSessionID, sessionID).
				Int(log.FieldFrameIndex, frame.FrameIndex).
				Msg("frame download failed")
			errs = append(errs, err)
			continue
		}
		saved = append(saved, FrameName(frame.FrameIndex))
	}
	return saved, errors.Join(errs...)
}
