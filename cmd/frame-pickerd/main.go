// frame-pickerd is the Frame Picker processing service: it accepts
// video uploads, extracts and scores candidate frames with ffmpeg, and
// serves the selected frames back over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/GrzywN/frame-picker-sub000/internal/api"
	"github.com/GrzywN/frame-picker-sub000/internal/config"
	"github.com/GrzywN/frame-picker-sub000/internal/daemon"
	"github.com/GrzywN/frame-picker-sub000/internal/health"
	fplog "github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/presign"
	"github.com/GrzywN/frame-picker-sub000/internal/session"
	"github.com/GrzywN/frame-picker-sub000/internal/usage"
	"github.com/GrzywN/frame-picker-sub000/internal/worker"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	fplog.Configure(fplog.Config{
		Level:   cfg.LogLevel,
		Service: "frame-picker",
		Version: version,
	})
	logger := fplog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.invalid").
			Msg("invalid configuration")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().
			Err(err).
			Str("path", cfg.DataDir).
			Msg("cannot create data directory")
	}

	trustedProxies, err := cfg.TrustedProxyNets()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.invalid").
			Msg("invalid FRAMEPICKER_TRUSTED_PROXIES")
	}

	ctx := daemon.WaitForShutdown()

	store := session.NewStore(session.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.SessionTTL, fplog.WithComponent("session"))

	usageStore, err := usage.NewStore(cfg.UsageDBPath())
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("path", cfg.UsageDBPath()).
			Msg("cannot open usage database")
	}

	runner := worker.NewRunner(worker.Deps{
		Store: store,
		Usage: usageStore,
		Pipeline: &worker.FFmpegPipeline{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
			Logger:      fplog.WithComponent("pipeline"),
		},
		Logger:  fplog.WithComponent("worker"),
		DataDir: cfg.DataDir,
		MaxJobs: int64(cfg.MaxJobs),
	})

	hm := health.NewManager(version)
	hm.Register(&health.StoreChecker{Component: "sessions", Store: store})
	hm.Register(&health.StoreChecker{Component: "usage", Store: usageStore})
	hm.Register(&health.DirChecker{Component: "data_dir", Path: cfg.DataDir})
	hm.Register(&health.BinaryChecker{Component: "ffmpeg", Path: cfg.FFmpegPath})
	hm.Register(&health.BinaryChecker{Component: "ffprobe", Path: cfg.FFprobePath})

	var presignSvc *presign.Service
	if cfg.PresignSecret != "" {
		presignSvc = presign.NewService(&presign.HMACSigner{
			BaseURL: cfg.PresignBaseURL,
			Secret:  []byte(cfg.PresignSecret),
		})
		logger.Info().Str(fplog.FieldBaseURL, cfg.PresignBaseURL).Msg("presigned uploads enabled")
	} else {
		logger.Info().Msg("presigned uploads disabled (FRAMEPICKER_PRESIGN_SECRET not set)")
	}

	server := api.New(api.Deps{
		Store:             store,
		Usage:             usageStore,
		Jobs:              runner,
		Health:            hm,
		Presign:           presignSvc,
		Logger:            fplog.WithComponent("api"),
		DataDir:           cfg.DataDir,
		RequestsPerMinute: cfg.RequestsPerMinute,
		TrustedProxies:    trustedProxies,
	})

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting frame-picker")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Usage DB: %s", cfg.UsageDBPath())
	if cfg.RedisAddr != "" {
		logger.Info().Msgf("→ Sessions: redis (%s)", cfg.RedisAddr)
	} else {
		logger.Info().Msg("→ Sessions: in-memory")
	}
	logger.Info().Msgf("→ Jobs: max %d concurrent (ffmpeg: %s)", cfg.MaxJobs, cfg.FFmpegPath)

	d := daemon.New(daemon.DefaultConfig(version, cfg.ListenAddr), logger, runner)

	if err := d.Start(ctx, server.Router()); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon failed")
	}

	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("session store close error")
	}
	if err := usageStore.Close(); err != nil {
		logger.Warn().Err(err).Msg("usage store close error")
	}

	logger.Info().Msg("server exiting")
}
