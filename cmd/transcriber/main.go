package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/voice-transcriber/internal/cache"
	"github.com/andresuchdata/voice-transcriber/internal/config"
	"github.com/andresuchdata/voice-transcriber/internal/job"
	"github.com/andresuchdata/voice-transcriber/internal/storage"
	"github.com/andresuchdata/voice-transcriber/pkg/logger"
)

type depsKey struct{}

// deps is what every command needs, built once in Before and released in After.
type deps struct {
	cfg     *config.Config
	backend storage.Backend
	cache   cache.ArtifactCache
}

func initDeps(c *cli.Context) error {
	cfg := config.Load()
	if c.IsSet("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = c.String("log-level")
	}
	logger.SetLevel(cfg.Log.Level)

	if c.IsSet("workers") {
		cfg.Transfer.Workers = c.Int("workers")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend, err := storage.NewBackend(c.Context, cfg.Backend())
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	artifactCache := cache.NewNoopArtifactCache()
	if !cfg.Features.MockStorage {
		artifactCache, err = cache.NewArtifactCache(c.Context, cfg.Cache)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Artifact cache unavailable, continuing without it")
			artifactCache = cache.NewNoopArtifactCache()
		}
	}

	logger.Log.Info().
		Str("driver", cfg.Storage.Driver).
		Str("endpoint", cfg.Storage.EndpointURL()).
		Bool("mock", cfg.Features.MockStorage).
		Bool("existence_check", !cfg.Features.DisableExistenceCheck).
		Bool("cache", cfg.Cache.Enabled).
		Int("workers", cfg.Transfer.Workers).
		Msg("Storage configured")

	c.Context = context.WithValue(c.Context, depsKey{}, &deps{
		cfg:     cfg,
		backend: backend,
		cache:   artifactCache,
	})
	return nil
}

func closeDeps(c *cli.Context) error {
	if d, ok := c.Context.Value(depsKey{}).(*deps); ok && d != nil {
		return d.cache.Close()
	}
	return nil
}

func depsFrom(c *cli.Context) *deps {
	return c.Context.Value(depsKey{}).(*deps)
}

func jobFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Usage:   "JSON file holding the job input; flags below override its fields",
			EnvVars: []string{"JOB_INPUT_FILE"},
		},
		&cli.StringFlag{Name: "session-id", Usage: "Session identifier", EnvVars: []string{"JOB_SESSION_ID"}},
		&cli.StringFlag{Name: "test-id", Usage: "Test identifier", EnvVars: []string{"JOB_TEST_ID"}},
		&cli.StringFlag{Name: "voice-path", Usage: "Voice file as bucket/key", EnvVars: []string{"JOB_VOICE_PATH"}},
		&cli.StringFlag{Name: "language", Usage: "Spoken language; empty to detect", EnvVars: []string{"JOB_LANGUAGE"}},
		&cli.StringFlag{Name: "model", Usage: "Whisper model (medium, large, large-v2, large-v3)", EnvVars: []string{"JOB_MODEL_NAME"}},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "transcriber",
		Usage: "Transcribe session voice recordings and manage their analysis artifacts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Maximum concurrent transfers in a batch download",
				Value:   config.DefaultWorkers,
				EnvVars: []string{"TRANSFER_WORKERS"},
			},
		},
		Before: initDeps,
		After:  closeDeps,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one transcription job",
				Flags:  jobFlags(),
				Action: runJob,
			},
			{
				Name:  "download-folder",
				Usage: "Download every object under a prefix into a local directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bucket", Usage: "Source bucket", Required: true},
					&cli.StringFlag{Name: "prefix", Usage: "Key prefix to list"},
					&cli.StringFlag{
						Name:    "dir",
						Usage:   "Destination directory",
						Value:   "./data/tmp/downloads",
						EnvVars: []string{"DOWNLOAD_DIR"},
					},
				},
				Action: downloadFolder,
			},
			{
				Name:  "exists",
				Usage: "Check whether a session artifact was already published",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session-id", Usage: "Session identifier", Required: true},
					&cli.StringFlag{Name: "test-id", Usage: "Test identifier", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Artifact name", Value: job.ResultName},
				},
				Action: checkExists,
			},
		},
	}
}

// main owns the process exit so that After has released deps before any non-zero status.
func main() {
	err := newApp().Run(os.Args)
	switch {
	case err == nil:
	case errors.Is(err, errArtifactMissing):
		os.Exit(1)
	default:
		logger.Log.Fatal().Err(err).Msg("transcriber failed")
	}
}
