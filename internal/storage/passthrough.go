package storage

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// PassthroughBackend stands in for the object store when FF_DEBUG_MOCK_S3 is set. Object paths are
// treated as local file paths and nothing leaves the machine.
type PassthroughBackend struct{}

func NewPassthroughBackend() *PassthroughBackend {
	return &PassthroughBackend{}
}

// Download returns the input path unchanged as a borrowed artifact; no temp file is created.
func (b *PassthroughBackend) Download(_ context.Context, p ObjectPath) (*Artifact, error) {
	log.Info().Str("path", p.String()).Msg("mock storage: using local file")
	return Borrow(p.String()), nil
}

// Upload leaves the file where it is and reports its absolute local path.
func (b *PassthroughBackend) Upload(_ context.Context, localPath string, _ ObjectPath) (ObjectPath, error) {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}
	log.Info().Str("path", abs).Msg("mock storage: leaving file in place")
	// an absolute path parses as an empty bucket plus the rest; String gives the path back
	p, err := ParseObjectPath(filepath.ToSlash(abs))
	if err != nil {
		return ObjectPath{}, NewError("upload", localPath, ErrInvalidPath, err)
	}
	return p, nil
}

func (b *PassthroughBackend) Exists(context.Context, ObjectPath) (bool, error) {
	return false, nil
}

func (b *PassthroughBackend) List(_ context.Context, bucket, prefix string) ([]ObjectPath, error) {
	log.Info().Str("bucket", bucket).Str("prefix", prefix).Msg("mock storage: no listing")
	return []ObjectPath{}, nil
}

var _ Backend = (*PassthroughBackend)(nil)
