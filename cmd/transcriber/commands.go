package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/voice-transcriber/internal/job"
	"github.com/andresuchdata/voice-transcriber/internal/transcription"
	"github.com/andresuchdata/voice-transcriber/internal/transfer"
)

// errArtifactMissing makes `exists` exit 1. It is returned rather than exiting in place so the
// app's After hook still runs.
var errArtifactMissing = errors.New("artifact not found")

func runJob(c *cli.Context) error {
	d := depsFrom(c)

	in, err := jobInput(c)
	if err != nil {
		return err
	}

	recognizer, err := transcription.NewCommandRecognizer(d.cfg.Recognizer.Command, d.cfg.Recognizer.Device)
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}

	handler := job.NewHandler(d.cfg, d.backend, recognizer, job.WithArtifactCache(d.cache))
	res, err := handler.Handle(c.Context, in)
	if err != nil {
		return err
	}

	out := struct {
		Path          string                    `json:"path"`
		Skipped       bool                      `json:"skipped"`
		Transcription *transcription.Transcript `json:"transcription,omitempty"`
	}{
		Path:          res.Path.String(),
		Skipped:       res.Skipped,
		Transcription: res.Transcript,
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

// jobInput reads the optional --input file, then applies any explicitly set flags on top.
func jobInput(c *cli.Context) (job.Input, error) {
	var in job.Input
	if path := c.String("input"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("failed to read job input %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return in, fmt.Errorf("failed to parse job input %s: %w", path, err)
		}
	}

	for flag, field := range map[string]*string{
		"session-id": &in.SessionID,
		"test-id":    &in.TestID,
		"voice-path": &in.VoicePath,
		"language":   &in.Language,
		"model":      &in.ModelName,
	} {
		if c.IsSet(flag) {
			*field = c.String(flag)
		}
	}
	return in, nil
}

func downloadFolder(c *cli.Context) error {
	d := depsFrom(c)
	client := transfer.New(d.backend, d.cfg.TransferFor("", ""))

	summary, err := client.DownloadFolder(c.Context, c.String("bucket"), c.String("prefix"), c.String("dir"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "listed=%d downloaded=%d failed=%d\n", summary.Listed, summary.Downloaded, summary.Failed)
	return nil
}

func checkExists(c *cli.Context) error {
	d := depsFrom(c)
	client := transfer.New(
		d.backend,
		d.cfg.TransferFor(c.String("test-id"), c.String("session-id")),
		transfer.WithArtifactCache(d.cache),
	)

	p, found, err := client.CheckArtifactExists(c.Context, c.String("name"))
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(c.App.Writer, "not found: %s\n", client.ResultPath(c.String("name")))
		return errArtifactMissing
	}
	fmt.Fprintln(c.App.Writer, p.String())
	return nil
}
