package storage

import (
	"fmt"
	"path"
	"strings"
)

const separator = "/"

// ObjectPath addresses one object as bucket/key. The zero value is not a valid path.
type ObjectPath struct {
	bucket string
	key    string
}

// ParseObjectPath splits s at its first separator: the bucket is everything before it and the
// key is the remainder, which may itself contain separators.
func ParseObjectPath(s string) (ObjectPath, error) {
	bucket, key, ok := strings.Cut(s, separator)
	if !ok {
		return ObjectPath{}, fmt.Errorf("%w: %q has no %q separator", ErrInvalidPath, s, separator)
	}
	return ObjectPath{bucket: bucket, key: key}, nil
}

// MustParseObjectPath is ParseObjectPath for literals known to be valid.
func MustParseObjectPath(s string) ObjectPath {
	p, err := ParseObjectPath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func NewObjectPath(bucket, key string) ObjectPath {
	return ObjectPath{bucket: bucket, key: key}
}

func (p ObjectPath) Bucket() string { return p.bucket }
func (p ObjectPath) Key() string    { return p.key }

// String reproduces the bucket/key form accepted by ParseObjectPath.
func (p ObjectPath) String() string {
	return p.bucket + separator + p.key
}

// Base returns the last element of the key.
func (p ObjectPath) Base() string {
	return path.Base(p.key)
}

// Ext returns the key's extension including the dot, or "".
func (p ObjectPath) Ext() string {
	return path.Ext(p.key)
}

// JoinKey joins key segments with the separator and drops empty ones.
func JoinKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, separator)
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, separator)
}
