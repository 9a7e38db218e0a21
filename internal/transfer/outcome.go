package transfer

import "github.com/andresuchdata/voice-transcriber/internal/storage"

// Outcome is the result of one per-file operation: either a value or a typed failure.
type Outcome[T any] struct {
	value T
	err   error
}

func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{err: err}
}

func (o Outcome[T]) OK() bool   { return o.err == nil }
func (o Outcome[T]) Value() T   { return o.value }
func (o Outcome[T]) Err() error { return o.err }

// Kind classifies the failure; KindNone for a success.
func (o Outcome[T]) Kind() storage.ErrorKind {
	return storage.KindOf(o.err)
}

// Result pairs a requested object with what happened to it.
type Result struct {
	Path    storage.ObjectPath
	Outcome Outcome[*storage.Artifact]
}

// FolderSummary counts what a folder download did. Listed = Downloaded + Failed.
type FolderSummary struct {
	Listed     int
	Downloaded int
	Failed     int
}
