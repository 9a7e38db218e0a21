package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend implements Backend for MinIO or any S3-compatible service through minio-go.
type MinioBackend struct {
	client *minio.Client
}

// NewMinioBackend creates the client. No request is made until the first operation.
func NewMinioBackend(cfg BackendConfig) (*MinioBackend, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials must be provided")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioBackend{client: client}, nil
}

func (b *MinioBackend) Download(ctx context.Context, p ObjectPath) (*Artifact, error) {
	return downloadToTemp(p, func(w io.Writer) error {
		obj, err := b.client.GetObject(ctx, p.Bucket(), p.Key(), minio.GetObjectOptions{})
		if err != nil {
			return translateMinioError("download", p.String(), err)
		}
		defer obj.Close()

		// GetObject is lazy: a missing key surfaces on the first read
		if _, err := io.Copy(w, obj); err != nil {
			return translateMinioError("download", p.String(), err)
		}
		return nil
	})
}

func (b *MinioBackend) Upload(ctx context.Context, localPath string, dst ObjectPath) (ObjectPath, error) {
	_, err := b.client.FPutObject(ctx, dst.Bucket(), dst.Key(), localPath, minio.PutObjectOptions{
		ContentType: detectContentType(localPath),
	})
	if err != nil {
		return ObjectPath{}, translateMinioError("upload", dst.String(), err)
	}
	return dst, nil
}

func (b *MinioBackend) Exists(ctx context.Context, p ObjectPath) (bool, error) {
	_, err := b.client.StatObject(ctx, p.Bucket(), p.Key(), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	terr := translateMinioError("head", p.String(), err)
	if KindOf(terr) == KindNotFound {
		return false, nil
	}
	return false, terr
}

func (b *MinioBackend) List(ctx context.Context, bucket, prefix string) ([]ObjectPath, error) {
	paths := make([]ObjectPath, 0)
	for obj := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, translateMinioError("list", JoinKey(bucket, prefix), obj.Err)
		}
		// directory markers carry no content
		if strings.HasSuffix(obj.Key, separator) {
			continue
		}
		paths = append(paths, NewObjectPath(bucket, obj.Key))
	}
	return paths, nil
}

func translateMinioError(op, path string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return NewError(op, path, ErrNotFound, err)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return NewError(op, path, ErrAccessDenied, err)
	default:
		return NewError(op, path, ErrTransfer, err)
	}
}

var _ Backend = (*MinioBackend)(nil)
