package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Artifact is a local file materialized by a transfer. The holder owns it until Remove or
// MoveTo; a borrowed artifact points at a file the process does not own and is never deleted.
type Artifact struct {
	mu       sync.Mutex
	path     string
	owned    bool
	retained bool
}

// CreateTemp creates an empty temporary file with the given extension and returns it open for
// writing together with its owning Artifact.
func CreateTemp(ext string) (*os.File, *Artifact, error) {
	f, err := os.CreateTemp("", "transfer-*"+ext)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, &Artifact{path: f.Name(), owned: true}, nil
}

// Borrow wraps a path the caller does not own. Remove and MoveTo leave it in place.
func Borrow(path string) *Artifact {
	return &Artifact{path: path}
}

func (a *Artifact) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Owned reports whether Remove would delete the file.
func (a *Artifact) Owned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owned && !a.retained
}

// Retain keeps the file on disk for inspection: Remove becomes a no-op.
func (a *Artifact) Retain() {
	a.mu.Lock()
	a.retained = true
	a.mu.Unlock()
}

// Remove deletes an owned file. It is safe to call more than once.
func (a *Artifact) Remove() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.owned || a.retained {
		return nil
	}
	a.owned = false
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.path, err)
	}
	return nil
}

// MoveTo relocates an owned file to dst, replacing anything there. After a successful move the
// artifact no longer owns a file. Borrowed artifacts are copied instead, leaving the source alone.
func (a *Artifact) MoveTo(dst string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.owned {
		return copyFile(a.path, dst)
	}
	if err := os.Rename(a.path, dst); err != nil {
		// temp dir and destination may sit on different devices
		if cerr := copyFile(a.path, dst); cerr != nil {
			return fmt.Errorf("move %s to %s: %w", a.path, dst, errors.Join(err, cerr))
		}
		_ = os.Remove(a.path)
	}
	a.path = dst
	a.owned = false
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// downloadToTemp materializes an object through fetch into a fresh temp file. On any failure the
// temp file is removed, so a failed download leaves nothing behind.
func downloadToTemp(p ObjectPath, fetch func(w io.Writer) error) (*Artifact, error) {
	f, artifact, err := CreateTemp(p.Ext())
	if err != nil {
		return nil, NewError("download", p.String(), ErrTransfer, err)
	}
	if err := fetch(f); err != nil {
		f.Close()
		_ = artifact.Remove()
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = artifact.Remove()
		return nil, NewError("download", p.String(), ErrTransfer, err)
	}
	return artifact, nil
}
