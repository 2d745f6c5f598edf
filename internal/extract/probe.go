// Package extract turns an uploaded video into scored candidate frames
// and selects the best ones. Decoding is delegated to ffmpeg; analysis
// and selection are done in-process.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// VideoInfo is the probed metadata of an uploaded video.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
}

// Prober reads video metadata via ffprobe.
type Prober struct {
	FFprobePath string
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against path and parses the first video stream.
func (p *Prober) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	bin := p.FFprobePath
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin, // #nosec G204
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract: ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("extract: parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("extract: no video stream in %s", path)
	}

	stream := out.Streams[0]
	fps := parseRate(stream.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(stream.RFrameRate)
	}
	duration, _ := strconv.ParseFloat(out.Format.Duration, 64)

	return &VideoInfo{
		Duration: duration,
		Width:    stream.Width,
		Height:   stream.Height,
		FPS:      fps,
	}, nil
}

// parseRate parses ffprobe's "num/den" rate notation.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
