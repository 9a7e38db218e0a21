package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lastModified = "Mon, 01 Jan 2024 00:00:00 GMT"

// s3Stub answers the path-style S3 requests minio-go sends for one bucket.
type s3Stub struct {
	mu      sync.Mutex
	objects map[string][]byte // key -> body
	denied  map[string]bool
	puts    map[string]string // key -> content type
}

func newS3Stub() *s3Stub {
	return &s3Stub{
		objects: make(map[string][]byte),
		denied:  make(map[string]bool),
		puts:    make(map[string]string),
	}
}

func writeS3Error(w http.ResponseWriter, status int, code, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><Key>%s</Key></Error>`, code, code, key)
}

func (s *s3Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != "voices" {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
		s.list(w, r.URL.Query().Get("prefix"))
		return
	}
	if s.denied[key] {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeS3Error(w, http.StatusForbidden, "AccessDenied", key)
		return
	}

	switch r.Method {
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		s.objects[key] = []byte("uploaded")
		s.puts[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		body, ok := s.objects[key]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeS3Error(w, http.StatusNotFound, "NoSuchKey", key)
			return
		}
		w.Header().Set("Last-Modified", lastModified)
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *s3Stub) list(w http.ResponseWriter, prefix string) {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, `<Name>voices</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, prefix, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><ETag>"etag"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`, k, len(s.objects[k]))
	}
	b.WriteString(`</ListBucketResult>`)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, b.String())
}

func newStubbedMinio(t *testing.T) (*MinioBackend, *s3Stub) {
	t.Helper()
	stub := newS3Stub()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	b, err := NewMinioBackend(BackendConfig{
		Driver:    DriverMinio,
		Endpoint:  srv.URL,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		// a fixed region keeps minio-go from asking the stub for the bucket location
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return b, stub
}

// isolateTempDir points temp files at an empty directory so leftovers can be counted.
func isolateTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	return dir
}

func TestMinioBackend_Download(t *testing.T) {
	tmp := isolateTempDir(t)
	b, stub := newStubbedMinio(t)
	stub.objects["session-1/voice.wav"] = []byte("RIFF....WAVE")
	ctx := context.Background()

	a, err := b.Download(ctx, MustParseObjectPath("voices/session-1/voice.wav"))
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(a.Path()))
	assert.True(t, a.Owned())
	got, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(got))
	require.NoError(t, a.Remove())

	_, err = b.Download(ctx, MustParseObjectPath("voices/session-1/missing.wav"))
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))

	stub.denied["session-1/secret.wav"] = true
	_, err = b.Download(ctx, MustParseObjectPath("voices/session-1/secret.wav"))
	require.Error(t, err)
	assert.Equal(t, KindAccessDenied, KindOf(err))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed downloads leave no temp file")
}

func TestMinioBackend_Exists(t *testing.T) {
	b, stub := newStubbedMinio(t)
	stub.objects["v0.0.1/t/s/transcription.json"] = []byte("{}")
	stub.denied["v0.0.1/t/s/locked.json"] = true
	ctx := context.Background()

	ok, err := b.Exists(ctx, MustParseObjectPath("voices/v0.0.1/t/s/transcription.json"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, MustParseObjectPath("voices/v0.0.1/t/s/other.json"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Exists(ctx, MustParseObjectPath("voices/v0.0.1/t/s/locked.json"))
	require.Error(t, err)
	assert.Equal(t, KindAccessDenied, KindOf(err))
}

func TestMinioBackend_ListSkipsDirectoryMarkers(t *testing.T) {
	b, stub := newStubbedMinio(t)
	stub.objects["session-1/"] = nil
	stub.objects["session-1/a.wav"] = []byte("a")
	stub.objects["session-1/nested/"] = nil
	stub.objects["session-1/nested/b.wav"] = []byte("b")
	stub.objects["session-2/c.wav"] = []byte("c")
	ctx := context.Background()

	paths, err := b.List(ctx, "voices", "session-1/")
	require.NoError(t, err)
	var got []string
	for _, p := range paths {
		got = append(got, p.String())
	}
	assert.Equal(t, []string{"voices/session-1/a.wav", "voices/session-1/nested/b.wav"}, got)

	paths, err = b.List(ctx, "voices", "nothing/")
	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
}

func TestMinioBackend_Upload(t *testing.T) {
	b, stub := newStubbedMinio(t)
	local := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(local, []byte(`{"a": 1}`), 0o644))

	dst := MustParseObjectPath("voices/v0.0.1/t/s/result.json")
	written, err := b.Upload(context.Background(), local, dst)
	require.NoError(t, err)
	assert.Equal(t, dst, written)
	assert.Equal(t, "application/json", stub.puts["v0.0.1/t/s/result.json"])
	assert.Contains(t, stub.objects, "v0.0.1/t/s/result.json")

	_, err = b.Upload(context.Background(), filepath.Join(t.TempDir(), "absent.json"), dst)
	assert.Error(t, err)
}
