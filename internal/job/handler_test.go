package job

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/voice-transcriber/internal/config"
	"github.com/andresuchdata/voice-transcriber/internal/storage"
	"github.com/andresuchdata/voice-transcriber/internal/transcription"
)

type memBackend struct {
	mu         sync.Mutex
	objects    map[string][]byte
	downloaded []string
	headErr    error
}

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string][]byte)}
}

func (m *memBackend) Download(_ context.Context, p storage.ObjectPath) (*storage.Artifact, error) {
	m.mu.Lock()
	data, ok := m.objects[p.String()]
	m.mu.Unlock()
	if !ok {
		return nil, storage.NewError("download", p.String(), storage.ErrNotFound, nil)
	}
	f, a, err := storage.CreateTemp(p.Ext())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.downloaded = append(m.downloaded, a.Path())
	m.mu.Unlock()
	return a, nil
}

func (m *memBackend) Upload(_ context.Context, localPath string, dst storage.ObjectPath) (storage.ObjectPath, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return storage.ObjectPath{}, err
	}
	m.mu.Lock()
	m.objects[dst.String()] = data
	m.mu.Unlock()
	return dst, nil
}

func (m *memBackend) Exists(_ context.Context, p storage.ObjectPath) (bool, error) {
	if m.headErr != nil {
		return false, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[p.String()]
	return ok, nil
}

func (m *memBackend) List(context.Context, string, string) ([]storage.ObjectPath, error) {
	return []storage.ObjectPath{}, nil
}

type fakeRecognizer struct {
	calls    []transcription.Request
	sawAudio string
	err      error
}

func (f *fakeRecognizer) Recognize(_ context.Context, req transcription.Request) (*transcription.Transcript, error) {
	f.calls = append(f.calls, req)
	if data, err := os.ReadFile(req.AudioPath); err == nil {
		f.sawAudio = string(data)
	}
	if f.err != nil {
		return nil, f.err
	}
	t := &transcription.Transcript{
		Language: "en",
		Segments: []transcription.Segment{{ID: 0, Start: 0, End: 1, Text: " Hello, world!", Words: []transcription.Word{}}},
	}
	t.LanguageProbability = 1
	t.Finalize()
	return t, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Storage:    config.StorageConfig{UploadBucket: "analysis", Version: "v0.0.1"},
		Transfer:   config.TransferSettings{Workers: 2},
		Recognizer: config.RecognizerConfig{DefaultModel: "large-v2"},
	}
}

func validInput() Input {
	return Input{
		SessionID: "session-1",
		TestID:    "test-1",
		VoicePath: "voices/session-1/voice.wav",
		Language:  "en",
	}
}

func newTestHandler(cfg *config.Config, b storage.Backend, r transcription.Recognizer) *Handler {
	return NewHandler(cfg, b, r, WithLogger(zerolog.Nop()))
}

func TestHandle_TranscribesAndPublishes(t *testing.T) {
	b := newMemBackend()
	b.objects["voices/session-1/voice.wav"] = []byte("RIFF")
	rec := &fakeRecognizer{}
	h := newTestHandler(testConfig(), b, rec)

	res, err := h.Handle(context.Background(), validInput())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "analysis/v0.0.1/test-1/session-1/transcription.json", res.Path.String())
	assert.Equal(t, "hello world", res.Transcript.NormalizedText)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, transcription.ModelLargeV2, rec.calls[0].Model)
	assert.Equal(t, "en", rec.calls[0].Language)
	assert.Equal(t, "RIFF", rec.sawAudio)

	var published transcription.Transcript
	require.NoError(t, json.Unmarshal(b.objects[res.Path.String()], &published))
	assert.Equal(t, *res.Transcript, published)

	for _, p := range b.downloaded {
		assert.NoFileExists(t, p, "voice temp file is removed")
	}
}

func TestHandle_SkipsExistingTranscript(t *testing.T) {
	b := newMemBackend()
	b.objects["voices/session-1/voice.wav"] = []byte("RIFF")
	b.objects["analysis/v0.0.1/test-1/session-1/transcription.json"] = []byte("{}")
	rec := &fakeRecognizer{}
	h := newTestHandler(testConfig(), b, rec)

	res, err := h.Handle(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, res.Transcript)
	assert.Empty(t, rec.calls)
	assert.Empty(t, b.downloaded)
}

func TestHandle_DisabledExistenceCheckReprocesses(t *testing.T) {
	b := newMemBackend()
	b.objects["voices/session-1/voice.wav"] = []byte("RIFF")
	b.objects["analysis/v0.0.1/test-1/session-1/transcription.json"] = []byte("{}")
	cfg := testConfig()
	cfg.Features.DisableExistenceCheck = true
	rec := &fakeRecognizer{}

	res, err := newTestHandler(cfg, b, rec).Handle(context.Background(), validInput())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Len(t, rec.calls, 1)
}

func TestHandle_ExistenceCheckFailureIsNotFatal(t *testing.T) {
	b := newMemBackend()
	b.objects["voices/session-1/voice.wav"] = []byte("RIFF")
	b.headErr = storage.NewError("head", "x", storage.ErrAccessDenied, errors.New("denied"))
	rec := &fakeRecognizer{}

	res, err := newTestHandler(testConfig(), b, rec).Handle(context.Background(), validInput())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestHandle_DownloadFailure(t *testing.T) {
	rec := &fakeRecognizer{}
	_, err := newTestHandler(testConfig(), newMemBackend(), rec).Handle(context.Background(), validInput())
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, rec.calls)
}

func TestHandle_RecognizerFailureCleansUp(t *testing.T) {
	b := newMemBackend()
	b.objects["voices/session-1/voice.wav"] = []byte("RIFF")
	rec := &fakeRecognizer{err: errors.New("model crashed")}

	_, err := newTestHandler(testConfig(), b, rec).Handle(context.Background(), validInput())
	require.ErrorContains(t, err, "model crashed")
	assert.NotContains(t, b.objects, "analysis/v0.0.1/test-1/session-1/transcription.json")
	require.Len(t, b.downloaded, 1)
	assert.NoFileExists(t, b.downloaded[0])
}

func TestHandle_ModelSelection(t *testing.T) {
	b := newMemBackend()
	b.objects["voices/session-1/voice.wav"] = []byte("RIFF")
	cfg := testConfig()
	cfg.Features.DisableExistenceCheck = true
	rec := &fakeRecognizer{}
	h := newTestHandler(cfg, b, rec)

	in := validInput()
	in.ModelName = "LARGE_V3"
	_, err := h.Handle(context.Background(), in)
	require.NoError(t, err)

	cfg.Recognizer.DefaultModel = "medium"
	_, err = h.Handle(context.Background(), validInput())
	require.NoError(t, err)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, transcription.ModelLargeV3, rec.calls[0].Model)
	assert.Equal(t, transcription.ModelMedium, rec.calls[1].Model)
}

func TestInput_Validate(t *testing.T) {
	require.NoError(t, validInput().Validate())

	err := Input{VoicePath: "no-separator", ModelName: "tiny"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
	for _, field := range []string{"session_id", "test_id", "voice_path", "model_name"} {
		assert.Contains(t, err.Error(), field)
	}

	_, err = newTestHandler(testConfig(), newMemBackend(), &fakeRecognizer{}).Handle(context.Background(), Input{})
	assert.ErrorContains(t, err, "invalid job input")
}

func TestHandle_MockStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Features.MockStorage = true
	b, err := storage.NewBackend(ctx, cfg.Backend())
	require.NoError(t, err)

	voice := t.TempDir() + "/voice.wav"
	require.NoError(t, os.WriteFile(voice, []byte("RIFF"), 0o644))
	in := validInput()
	in.VoicePath = voice

	rec := &fakeRecognizer{}
	res, err := newTestHandler(cfg, b, rec).Handle(ctx, in)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(res.Path.String()) })

	assert.Equal(t, voice, rec.calls[0].AudioPath, "mock mode reads the voice file in place")
	assert.FileExists(t, voice)
	assert.FileExists(t, res.Path.String(), "mock mode keeps the transcript locally")
}
