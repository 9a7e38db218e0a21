// Package transfer moves artifacts between local disk and the object store. It is the only
// storage surface the rest of the service uses.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/voice-transcriber/internal/cache"
	"github.com/andresuchdata/voice-transcriber/internal/config"
	"github.com/andresuchdata/voice-transcriber/internal/storage"
	"github.com/andresuchdata/voice-transcriber/pkg/logger"
)

// Client is a stateless facade over a configured backend. It is safe for concurrent use.
type Client struct {
	backend storage.Backend
	cfg     config.TransferConfig
	cache   cache.ArtifactCache
	log     zerolog.Logger
}

type Option func(*Client)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithArtifactCache consults and fills c when checking for existing artifacts.
func WithArtifactCache(ac cache.ArtifactCache) Option {
	return func(c *Client) {
		if ac != nil {
			c.cache = ac
		}
	}
}

func New(backend storage.Backend, cfg config.TransferConfig, opts ...Option) *Client {
	if cfg.Workers < 1 {
		cfg.Workers = config.DefaultWorkers
	}
	c := &Client{
		backend: backend,
		cfg:     cfg,
		cache:   cache.NewNoopArtifactCache(),
		log:     logger.Component("transfer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResultPath is where an artifact named name is stored for this client's session.
func (c *Client) ResultPath(name string) storage.ObjectPath {
	return storage.NewObjectPath(c.cfg.UploadBucket, storage.JoinKey(c.cfg.PathPrefix, name))
}

// DownloadFile fetches one object into a temp artifact owned by the caller. Errors are logged
// and returned unchanged.
func (c *Client) DownloadFile(ctx context.Context, p storage.ObjectPath) (*storage.Artifact, error) {
	c.log.Info().Str("path", p.String()).Msg("Downloading file")

	artifact, err := c.backend.Download(ctx, p)
	if err != nil {
		c.logFailure(err, p.String(), "download")
		return nil, err
	}
	return artifact, nil
}

// UploadArtifact uploads localPath as <uploadBucket>/<prefix>/<name>.
func (c *Client) UploadArtifact(ctx context.Context, name, localPath string) (storage.ObjectPath, error) {
	dst := c.ResultPath(name)
	c.log.Info().Str("path", dst.String()).Str("local", localPath).Msg("Uploading file")

	written, err := c.backend.Upload(ctx, localPath, dst)
	if err != nil {
		c.logFailure(err, dst.String(), "upload")
		return storage.ObjectPath{}, err
	}
	return written, nil
}

// PublishJSON encodes data as indented JSON into a temp file and uploads it as name. The temp
// file is deleted afterwards, except in mock mode where it is kept for inspection.
func (c *Client) PublishJSON(ctx context.Context, name string, data any) (storage.ObjectPath, error) {
	payload, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		serr := storage.NewError("publish", c.ResultPath(name).String(), storage.ErrSerialization, err)
		c.logFailure(serr, name, "publish")
		return storage.ObjectPath{}, serr
	}

	f, artifact, err := storage.CreateTemp(".json")
	if err != nil {
		return storage.ObjectPath{}, storage.NewError("publish", name, storage.ErrTransfer, err)
	}
	if c.cfg.Features.MockStorage {
		artifact.Retain()
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to remove temp artifact")
		}
	}()

	if _, err := f.Write(payload); err != nil {
		f.Close()
		return storage.ObjectPath{}, storage.NewError("publish", name, storage.ErrTransfer, err)
	}
	if err := f.Close(); err != nil {
		return storage.ObjectPath{}, storage.NewError("publish", name, storage.ErrTransfer, err)
	}

	written, err := c.UploadArtifact(ctx, name, artifact.Path())
	if err != nil {
		return storage.ObjectPath{}, err
	}

	if !c.cfg.Features.MockStorage {
		if err := c.cache.Remember(ctx, written.String()); err != nil {
			c.log.Warn().Err(err).Str("path", written.String()).Msg("Failed to cache artifact existence")
		}
	}
	return written, nil
}

// CheckArtifactExists reports the remote path of a previously published artifact. It always
// reports "not found" when the existence check is disabled or storage is mocked.
//
// The backend answers the question. The cache only stands in when the HEAD request itself fails,
// and an entry for an object the backend no longer has is dropped.
func (c *Client) CheckArtifactExists(ctx context.Context, name string) (storage.ObjectPath, bool, error) {
	if c.cfg.Features.DisableExistenceCheck || c.cfg.Features.MockStorage {
		return storage.ObjectPath{}, false, nil
	}

	p := c.ResultPath(name)
	c.log.Info().Str("path", p.String()).Msg("Checking for existing artifact")

	exists, err := c.backend.Exists(ctx, p)
	if err != nil {
		if known, cerr := c.cache.Known(ctx, p.String()); cerr == nil && known {
			c.log.Warn().Err(err).Str("path", p.String()).Msg("HEAD failed, artifact was published before")
			return p, true, nil
		}
		c.logFailure(err, p.String(), "head")
		return storage.ObjectPath{}, false, err
	}

	if !exists {
		if err := c.cache.Forget(ctx, p.String()); err != nil {
			c.log.Warn().Err(err).Str("path", p.String()).Msg("Failed to drop stale artifact from cache")
		}
		return storage.ObjectPath{}, false, nil
	}

	if err := c.cache.Remember(ctx, p.String()); err != nil {
		c.log.Warn().Err(err).Str("path", p.String()).Msg("Failed to cache artifact existence")
	}
	return p, true, nil
}

func (c *Client) logFailure(err error, path, op string) {
	kind := storage.KindOf(err)
	ev := c.log.Error().Err(err).Str("path", path).Str("op", op).Str("kind", string(kind))
	switch kind {
	case storage.KindAccessDenied:
		ev.Msg("Access denied. Ensure the storage credentials have permission for this bucket")
	case storage.KindNotFound:
		ev.Msg("Object not found on bucket")
	case storage.KindSerialization:
		ev.Msg("Could not encode artifact")
	default:
		ev.Msg(fmt.Sprintf("Error occurred during %s", op))
	}
}

// removeQuietly is used where an artifact is abandoned on an error path.
func removeQuietly(a *storage.Artifact) {
	if a != nil {
		_ = a.Remove()
	}
}
