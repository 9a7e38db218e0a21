// Package transcription turns a voice recording into a timestamped, normalized transcript.
package transcription

import (
	"context"
	"strings"
)

// Word is one recognized word with its timing and confidence.
type Word struct {
	Text        string  `json:"text"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Segment is a contiguous span of speech.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// Transcript is the artifact published for a session.
type Transcript struct {
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Segments            []Segment `json:"segments"`
	NormalizedText      string    `json:"normalized_text"`
}

// Request describes one recognition run. An empty Language lets the recognizer detect it.
type Request struct {
	AudioPath string
	Language  string
	Model     Model
}

// Recognizer converts a local audio file into a Transcript.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (*Transcript, error)
}

// JoinSegments concatenates segment texts with single spaces, as they were recognized.
func JoinSegments(segments []Segment) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}

// Finalize fills NormalizedText from the segments and the detected language.
func (t *Transcript) Finalize() {
	if t.Segments == nil {
		t.Segments = []Segment{}
	}
	t.NormalizedText = Normalize(JoinSegments(t.Segments), t.Language)
}
