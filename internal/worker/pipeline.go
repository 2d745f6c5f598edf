// Package worker runs submitted processing jobs in the background: one
// goroutine per job, bounded by a semaphore, reporting progress through
// the session store.
package worker

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/GrzywN/frame-picker-sub000/internal/extract"
	"github.com/GrzywN/frame-picker-sub000/internal/session"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// Job is everything a pipeline needs to process one session.
type Job struct {
	SessionID  string
	VideoPath  string
	WorkDir    string
	ResultsDir string
	Tier       tier.Tier
	Options    tier.Options
}

// ReportFunc receives progress checkpoints while a job runs.
type ReportFunc func(progress int, message string)

// Pipeline turns an uploaded video into saved result frames.
type Pipeline interface {
	Process(ctx context.Context, job Job, report ReportFunc) ([]session.Frame, error)
}

// FFmpegPipeline is the production pipeline: ffmpeg extraction, in-process
// scoring and selection, JPEG output with tier watermarking.
type FFmpegPipeline struct {
	FFmpegPath  string
	FFprobePath string
	Logger      zerolog.Logger
}

func (p *FFmpegPipeline) Process(ctx context.Context, job Job, report ReportFunc) ([]session.Frame, error) {
	report(20, "Extracting frames from video...")

	prober := &extract.Prober{FFprobePath: p.FFprobePath}
	info, err := prober.Probe(ctx, job.VideoPath)
	if err != nil {
		return nil, err
	}

	extractor := &extract.Extractor{FFmpegPath: p.FFmpegPath, Logger: p.Logger}
	frames, err := extractor.Extract(ctx, job.VideoPath, job.WorkDir, job.Options.SampleRate, info.FPS)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("worker: no frames could be extracted from the video")
	}

	report(50, fmt.Sprintf("Analyzing %d frames...", len(frames)))

	selector := &extract.Selector{Scorer: extract.Scorer{
		Mode:    job.Options.Mode,
		Quality: job.Options.Quality,
	}}
	selected, err := selector.Select(frames, job.Options.Count, job.Options.MinInterval)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("worker: could not select suitable frames")
	}

	report(80, "Saving selected frames...")
	return saveFrames(selected, job.ResultsDir, job.Tier)
}

// saveFrames writes the winners as frame_NN.jpg into resultsDir and
// returns their session records. Result indexes are 0-based; filenames
// are 1-based.
func saveFrames(selected []extract.Scored, resultsDir string, t tier.Tier) ([]session.Frame, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("worker: create results dir: %w", err)
	}
	watermarked := extract.WatermarkedFor(t)

	results := make([]session.Frame, 0, len(selected))
	for i, s := range selected {
		img, err := loadImage(s.Path)
		if err != nil {
			return nil, fmt.Errorf("worker: reload %s: %w", s.Path, err)
		}
		path := filepath.Join(resultsDir, fmt.Sprintf("frame_%02d.jpg", i+1))
		size, err := extract.SaveJPEG(img, path, watermarked)
		if err != nil {
			return nil, err
		}
		results = append(results, session.Frame{
			Index:     i,
			Score:     s.Score,
			Timestamp: s.Timestamp,
			Width:     s.Width,
			Height:    s.Height,
			FileSize:  size,
			Path:      path,
		})
	}
	return results, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
