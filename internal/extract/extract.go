package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
)

// Frame is one sampled candidate on disk.
type Frame struct {
	Number    int     // source frame number
	Timestamp float64 // seconds from start
	Path      string
}

// Extractor samples frames out of a video via ffmpeg.
type Extractor struct {
	FFmpegPath string
	Logger     zerolog.Logger
}

// Extract decodes every sampleRate-th frame of videoPath into workDir as
// JPEG files and returns them ordered by frame number. fps is used to
// compute timestamps; zero fps yields zero timestamps, matching a video
// whose rate could not be probed.
func (e *Extractor) Extract(ctx context.Context, videoPath, workDir string, sampleRate int, fps float64) ([]Frame, error) {
	if sampleRate < 1 {
		sampleRate = 1
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract: create work dir: %w", err)
	}

	bin := e.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	pattern := filepath.Join(workDir, "cand_%05d.jpg")
	cmd := exec.CommandContext(ctx, bin, // #nosec G204
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", sampleRate),
		"-vsync", "vfr",
		"-q:v", "2",
		"-y",
		pattern,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract: ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	matches, err := filepath.Glob(filepath.Join(workDir, "cand_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("extract: list candidates: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("extract: no decodable frames in %s", filepath.Base(videoPath))
	}

	frames := make([]Frame, 0, len(matches))
	for i, path := range matches {
		number := i * sampleRate
		var ts float64
		if fps > 0 {
			ts = float64(number) / fps
		}
		frames = append(frames, Frame{Number: number, Timestamp: ts, Path: path})
	}

	e.Logger.Debug().
		Int(log.FieldFrameCount, len(frames)).
		Str(log.FieldPath, videoPath).
		Msg("candidate frames extracted")
	return frames, nil
}
