package storage

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

const (
	DriverMinio = "minio"
	DriverS3    = "s3"
)

// Backend performs exactly one remote operation per call. Retries and batching live in the
// transfer layer. Implementations must be safe for concurrent use.
type Backend interface {
	// Download fetches the object into a new temp file that keeps the key's extension.
	Download(ctx context.Context, p ObjectPath) (*Artifact, error)
	// Upload writes the local file to dst in a single request and returns the remote path written.
	Upload(ctx context.Context, localPath string, dst ObjectPath) (ObjectPath, error)
	// Exists reports whether the object exists without fetching its body.
	Exists(ctx context.Context, p ObjectPath) (bool, error)
	// List returns every object under prefix, or an empty slice.
	List(ctx context.Context, bucket, prefix string) ([]ObjectPath, error)
}

// BackendConfig carries the connection parameters of an S3-compatible store.
type BackendConfig struct {
	Driver    string
	Endpoint  string // host:port
	UseSSL    bool
	AccessKey string
	SecretKey string
	Region    string
	// Mock replaces every remote operation with a local passthrough.
	Mock bool
}

// NewBackend builds the backend selected by cfg. Mock mode never touches the network.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	if cfg.Mock {
		return NewPassthroughBackend(), nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint must be provided")
	}

	switch cfg.Driver {
	case DriverMinio, "":
		return NewMinioBackend(cfg)
	case DriverS3:
		return NewS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func detectContentType(localPath string) string {
	mt, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
