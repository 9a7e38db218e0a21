package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/voice-transcriber/internal/storage"
)

// DownloadFiles downloads every path concurrently with at most cfg.Workers transfers in flight.
//
// All transfers are started before DownloadFiles returns. Results arrive in completion order and
// every path yields exactly one Result; a failed download never stops the others. The channel is
// buffered for the whole batch and closed once every transfer has finished, so a consumer that
// stops reading early leaks no goroutines. Such a consumer should cancel ctx and pass the channel
// to Discard so downloaded temp files are removed.
func (c *Client) DownloadFiles(ctx context.Context, paths []storage.ObjectPath) <-chan Result {
	results := make(chan Result, len(paths))
	sem := semaphore.NewWeighted(int64(c.cfg.Workers))

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p storage.ObjectPath) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results <- Result{
					Path:    p,
					Outcome: Failed[*storage.Artifact](storage.NewError("download", p.String(), storage.ErrTransfer, err)),
				}
				return
			}
			defer sem.Release(1)

			artifact, err := c.DownloadFile(ctx, p)
			if err != nil {
				results <- Result{Path: p, Outcome: Failed[*storage.Artifact](err)}
				return
			}
			results <- Result{Path: p, Outcome: Succeeded(artifact)}
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Discard drains a result stream, removing every artifact it still holds.
func Discard(results <-chan Result) {
	for r := range results {
		if r.Outcome.OK() {
			removeQuietly(r.Outcome.Value())
		}
	}
}

// DownloadFolder downloads every object under bucket/prefix into localDir, each saved under the
// base name of its key. It is best-effort: per-file failures are logged and counted, not
// returned. Only a failed listing or an unusable localDir is an error. An empty listing
// downloads nothing and leaves localDir untouched.
func (c *Client) DownloadFolder(ctx context.Context, bucket, prefix, localDir string) (FolderSummary, error) {
	c.log.Info().Str("bucket", bucket).Str("prefix", prefix).Msg("Listing files in folder")

	paths, err := c.backend.List(ctx, bucket, prefix)
	if err != nil {
		c.logFailure(err, storage.JoinKey(bucket, prefix), "list")
		return FolderSummary{}, err
	}

	summary := FolderSummary{Listed: len(paths)}
	if len(paths) == 0 {
		c.log.Info().Str("bucket", bucket).Str("prefix", prefix).Msg("No files found in folder")
		return summary, nil
	}

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return summary, fmt.Errorf("failed to ensure download dir %s: %w", localDir, err)
	}

	c.log.Info().
		Int("files", len(paths)).
		Str("bucket", bucket).
		Str("prefix", prefix).
		Msg("Downloading files from folder")

	for r := range c.DownloadFiles(ctx, paths) {
		if !r.Outcome.OK() {
			summary.Failed++
			c.log.Error().Err(r.Outcome.Err()).Str("path", r.Path.String()).Msg("Failed to download file")
			continue
		}

		artifact := r.Outcome.Value()
		dst := filepath.Join(localDir, r.Path.Base())
		if err := artifact.MoveTo(dst); err != nil {
			summary.Failed++
			removeQuietly(artifact)
			c.log.Error().Err(err).Str("path", r.Path.String()).Str("local", dst).Msg("Failed to relocate file")
			continue
		}
		summary.Downloaded++
		c.log.Info().Str("path", r.Path.String()).Str("local", dst).Msg("Downloaded file")
	}

	c.log.Info().
		Int("listed", summary.Listed).
		Int("downloaded", summary.Downloaded).
		Int("failed", summary.Failed).
		Msg("Folder download finished")
	return summary, nil
}
