// Package job runs one transcription job: fetch the voice file, recognize it and publish the
// transcript next to the session's other analysis results.
package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andresuchdata/voice-transcriber/internal/cache"
	"github.com/andresuchdata/voice-transcriber/internal/config"
	"github.com/andresuchdata/voice-transcriber/internal/storage"
	"github.com/andresuchdata/voice-transcriber/internal/transcription"
	"github.com/andresuchdata/voice-transcriber/internal/transfer"
	"github.com/andresuchdata/voice-transcriber/pkg/logger"
)

// ResultName is the artifact a job publishes under its session prefix.
const ResultName = "transcription.json"

// Input is the payload of one job.
type Input struct {
	SessionID string `json:"session_id"`
	TestID    string `json:"test_id"`
	VoicePath string `json:"voice_path"`
	Language  string `json:"language"`
	ModelName string `json:"model_name"`
}

// Validate reports every missing or malformed field at once.
func (in Input) Validate() error {
	var errs []error
	if strings.TrimSpace(in.SessionID) == "" {
		errs = append(errs, errors.New("session_id is required"))
	}
	if strings.TrimSpace(in.TestID) == "" {
		errs = append(errs, errors.New("test_id is required"))
	}
	if _, err := storage.ParseObjectPath(in.VoicePath); err != nil {
		errs = append(errs, fmt.Errorf("voice_path: %w", err))
	}
	if in.ModelName != "" {
		if _, err := transcription.ParseModel(in.ModelName); err != nil {
			errs = append(errs, fmt.Errorf("model_name: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Result describes what a job produced.
type Result struct {
	// Path is where the transcript lives, whether written now or found from an earlier run.
	Path storage.ObjectPath
	// Transcript is nil when the job was skipped.
	Transcript *transcription.Transcript
	// Skipped is set when a transcript already existed and nothing was recognized.
	Skipped bool
}

type Handler struct {
	cfg        *config.Config
	backend    storage.Backend
	recognizer transcription.Recognizer
	cache      cache.ArtifactCache
	log        zerolog.Logger
}

type Option func(*Handler)

func WithArtifactCache(ac cache.ArtifactCache) Option {
	return func(h *Handler) {
		if ac != nil {
			h.cache = ac
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

func NewHandler(cfg *config.Config, backend storage.Backend, recognizer transcription.Recognizer, opts ...Option) *Handler {
	h := &Handler{
		cfg:        cfg,
		backend:    backend,
		recognizer: recognizer,
		cache:      cache.NewNoopArtifactCache(),
		log:        logger.Component("job"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle runs one job. A failed download or recognition fails the job; a failed existence check
// is logged and the job carries on.
func (h *Handler) Handle(ctx context.Context, in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job input: %w", err)
	}

	model, err := h.resolveModel(in.ModelName)
	if err != nil {
		return nil, err
	}
	voice := storage.MustParseObjectPath(in.VoicePath)

	log := h.log.With().
		Str("run_id", uuid.NewString()).
		Str("session_id", in.SessionID).
		Str("test_id", in.TestID).
		Logger()
	log.Info().Str("voice_path", in.VoicePath).Str("model", model.String()).Msg("Received job")

	client := transfer.New(
		h.backend,
		h.cfg.TransferFor(in.TestID, in.SessionID),
		transfer.WithLogger(log),
		transfer.WithArtifactCache(h.cache),
	)

	existing, found, err := client.CheckArtifactExists(ctx, ResultName)
	if err != nil {
		log.Warn().Err(err).Msg("Could not check for an existing transcript, transcribing anyway")
	}
	if found {
		log.Info().Str("path", existing.String()).Msg("Transcript already exists, skipping")
		return &Result{Path: existing, Skipped: true}, nil
	}

	artifact, err := client.DownloadFile(ctx, voice)
	if err != nil {
		return nil, fmt.Errorf("download voice file: %w", err)
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			log.Warn().Err(err).Str("local", artifact.Path()).Msg("Failed to remove voice file")
		}
	}()

	transcript, err := h.recognizer.Recognize(ctx, transcription.Request{
		AudioPath: artifact.Path(),
		Language:  in.Language,
		Model:     model,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe voice file: %w", err)
	}

	written, err := client.PublishJSON(ctx, ResultName, transcript)
	if err != nil {
		return nil, fmt.Errorf("publish transcript: %w", err)
	}

	log.Info().
		Str("path", written.String()).
		Str("language", transcript.Language).
		Int("segments", len(transcript.Segments)).
		Msg("Job completed")
	return &Result{Path: written, Transcript: transcript}, nil
}

// resolveModel falls back to the configured default when the job names none.
func (h *Handler) resolveModel(name string) (transcription.Model, error) {
	if strings.TrimSpace(name) == "" {
		name = h.cfg.Recognizer.DefaultModel
	}
	model, err := transcription.ParseModel(name)
	if err != nil {
		return "", fmt.Errorf("invalid job input: %w", err)
	}
	return model, nil
}
