package transcription

import (
	"fmt"
	"strings"
)

// Model names a whisper checkpoint.
type Model string

const (
	ModelMedium  Model = "medium"
	ModelLarge   Model = "large"
	ModelLargeV2 Model = "large-v2"
	ModelLargeV3 Model = "large-v3"

	DefaultModel = ModelLargeV2
)

var models = []Model{ModelMedium, ModelLarge, ModelLargeV2, ModelLargeV3}

// Models lists every supported checkpoint.
func Models() []Model {
	return append([]Model(nil), models...)
}

// ParseModel accepts a checkpoint name such as "large-v2", or its constant form "LARGE_V2".
// An empty name selects DefaultModel.
func ParseModel(name string) (Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel, nil
	}
	canonical := strings.ReplaceAll(strings.ToLower(name), "_", "-")
	for _, m := range models {
		if string(m) == canonical {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown whisper model %q, expected one of %v", name, models)
}

func (m Model) String() string { return string(m) }
