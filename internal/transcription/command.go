package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/voice-transcriber/pkg/logger"
)

// CommandRecognizer runs an external whisper-timestamped helper and converts its JSON output.
//
// The helper is invoked as
//
//	<command...> --audio <path> --model <model> --device <device> [--language <lang>]
//
// and must print the raw whisper-timestamped result on stdout.
type CommandRecognizer struct {
	command []string
	device  string
	log     zerolog.Logger
}

// NewCommandRecognizer splits command on whitespace, so it may carry its own arguments,
// e.g. "python3 /opt/helper/transcribe.py".
func NewCommandRecognizer(command, device string) (*CommandRecognizer, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, errors.New("recognizer command must be provided")
	}
	if device == "" {
		device = "auto"
	}
	return &CommandRecognizer{
		command: parts,
		device:  device,
		log:     logger.Component("recognizer"),
	}, nil
}

// helperOutput is what whisper-timestamped produces.
type helperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Text       string  `json:"text"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Confidence float64 `json:"confidence"`
		} `json:"words"`
	} `json:"segments"`
}

func (r *CommandRecognizer) Recognize(ctx context.Context, req Request) (*Transcript, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	args := append([]string{}, r.command[1:]...)
	args = append(args, "--audio", req.AudioPath, "--model", model.String(), "--device", r.device)
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}

	r.log.Info().
		Str("audio", req.AudioPath).
		Str("model", model.String()).
		Str("language", req.Language).
		Msg("Transcribing voice file")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Env = os.Environ()
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("recognizer failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("run recognizer: %w", err)
	}

	var parsed helperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse recognizer output: %w", err)
	}

	t := fromHelper(parsed)
	r.log.Debug().
		Str("language", t.Language).
		Int("segments", len(t.Segments)).
		Str("normalized_text", t.NormalizedText).
		Msg("Voice file transcribed")
	return t, nil
}

// fromHelper numbers segments in order and reports the detected language with full confidence,
// since whisper-timestamped does not expose a probability for it.
func fromHelper(out helperOutput) *Transcript {
	t := &Transcript{
		Language:            out.Language,
		LanguageProbability: 1,
		Segments:            make([]Segment, 0, len(out.Segments)),
	}
	for i, s := range out.Segments {
		words := make([]Word, 0, len(s.Words))
		for _, w := range s.Words {
			words = append(words, Word{Text: w.Text, Start: w.Start, End: w.End, Probability: w.Confidence})
		}
		t.Segments = append(t.Segments, Segment{
			ID:    i,
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
			Words: words,
		})
	}
	t.Finalize()
	return t
}

var _ Recognizer = (*CommandRecognizer)(nil)
