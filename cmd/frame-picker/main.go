// frame-picker is the command-line client for the Frame Picker service.
// It uploads a video, starts processing, polls until the selected frames
// are ready and downloads them into an output directory.
//
// Usage:
//
//	frame-picker -f video.mp4
//	frame-picker -f video.mp4 -mode action -count 3 -out ./frames
//
// Exit codes:
//   - 0: Frames downloaded
//   - 1: Upload, processing or download failed
//   - 2: Usage error (missing or invalid flag)
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/orchestrator"
	"github.com/GrzywN/frame-picker-sub000/internal/pickerapi"
	"github.com/GrzywN/frame-picker-sub000/internal/results"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

var Version = "dev"

func main() {
	var (
		file         string
		server       string
		tierName     string
		mode         string
		quality      string
		count        int
		sampleRate   int
		minInterval  float64
		outDir       string
		pollInterval time.Duration
		keepSession  bool
		verbose      bool
		showVersion  bool
	)

	flag.StringVar(&file, "file", "", "path to the video file")
	flag.StringVar(&file, "f", "", "path to the video file (shorthand)")
	flag.StringVar(&server, "server", "http://localhost:8000", "frame-picker service base URL")
	flag.StringVar(&tierName, "tier", "anonymous", "account tier (anonymous, free, pro)")
	flag.StringVar(&mode, "mode", "profile", "selection mode (profile, action)")
	flag.StringVar(&quality, "quality", "balanced", "analysis quality (fast, balanced, best)")
	flag.IntVar(&count, "count", 1, "number of frames to select")
	flag.IntVar(&sampleRate, "sample-rate", 30, "analyze every Nth frame")
	flag.Float64Var(&minInterval, "min-interval", 2.0, "minimum seconds between selected frames")
	flag.StringVar(&outDir, "out", ".", "directory for downloaded frames")
	flag.DurationVar(&pollInterval, "poll-interval", 2*time.Second, "wait between status polls")
	flag.BoolVar(&keepSession, "keep-session", false, "skip server-side cleanup on exit")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(Version)
		os.Exit(0)
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  frame-picker -f video.mp4")
		fmt.Fprintln(os.Stderr, "  frame-picker -f video.mp4 -mode action -count 3 -out ./frames")
		os.Exit(2)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log.Configure(log.Config{
		Level:   level,
		Output:  os.Stderr,
		Service: "frame-picker-cli",
		Version: Version,
	})

	if err := run(file, server, tierName, outDir, tier.Options{
		Mode:        tier.Mode(mode),
		Quality:     tier.Quality(quality),
		Count:       count,
		SampleRate:  sampleRate,
		MinInterval: minInterval,
	}, pollInterval, keepSession); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(file, server, tierName, outDir string, opts tier.Options, pollInterval time.Duration, keepSession bool) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	client := pickerapi.New(server)
	userTier := tier.Parse(tierName)

	flow := orchestrator.New(orchestrator.Deps{
		Client: client,
		Tier:   userTier,
		Logger: log.WithComponent("orchestrator"),
		OnUploadProgress: func(percent int) {
			fmt.Printf("\rUploading... %3d%%", percent)
			if percent >= 100 {
				fmt.Println()
			}
		},
		Notify: func(s orchestrator.Snapshot) {
			if s.Step == orchestrator.StepProcessing && s.Message != "" {
				fmt.Printf("[%3d%%] %s\n", s.Progress, s.Message)
			}
		},
		PollInterval: pollInterval,
	})

	ctx := context.Background()

	fmt.Printf("Uploading %s (%s tier)\n", filepath.Base(file), userTier)
	if err := flow.SelectFile(ctx, pickerapi.File{
		Name:        filepath.Base(file),
		ContentType: contentTypeFor(file),
		Size:        info.Size(),
		Reader:      f,
	}); err != nil {
		return err
	}

	if err := flow.Submit(ctx, opts); err != nil {
		return err
	}
	<-flow.Done()

	snap := flow.Snapshot()
	if !keepSession {
		defer flow.Reset(ctx)
	}
	switch snap.Step {
	case orchestrator.StepCompleted:
	case orchestrator.StepFailed:
		// The failure reason lives in the error slot; Message still holds
		// the last progress checkpoint.
		if snap.Err != nil {
			return fmt.Errorf("processing failed: %w", snap.Err)
		}
		return fmt.Errorf("processing failed")
	default:
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("processing did not complete (step %s)", snap.Step)
	}

	if len(snap.Results) == 0 {
		fmt.Println("No suitable frames were found in this video.")
		return nil
	}

	presenter := &results.Presenter{
		Client: client,
		Saver:  &results.DirSaver{Dir: outDir},
		Logger: log.WithComponent("results"),
	}
	saved, err := presenter.DownloadAll(ctx, snap.SessionID, snap.Results)
	if err != nil {
		return err
	}
	for _, name := range saved {
		fmt.Printf("✓ %s\n", filepath.Join(outDir, name))
	}
	fmt.Printf("Saved %d frame(s) to %s\n", len(saved), outDir)
	return nil
}

// contentTypeFor maps the file extension to a video MIME type, falling
// back to video/mp4 so the server-side allow-list still gets a video type
// for unusual extensions.
func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(ct, "video/") {
		return ct
	}
	return "video/mp4"
}
