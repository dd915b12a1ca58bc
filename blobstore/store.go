// Package blobstore keeps the binary artifacts (images, original documents)
// that articles reference. Keys are generated here, never taken from callers,
// so two uploads can not collide on a name.
package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"articlehub/types"

	"github.com/google/uuid"
)

// Namespace separates unrelated artifact kinds.
type Namespace string

const (
	Images    Namespace = "images"
	Documents Namespace = "files"
)

// Namespaces lists every namespace a key may live in.
var Namespaces = []Namespace{Images, Documents}

const maxExtLen = 10

// Object describes a stored blob.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is durable storage for uploaded artifacts.
type Store interface {
	// Put writes data under a fresh key derived from the namespace and the
	// extension of name. Existing objects are never overwritten.
	Put(ctx context.Context, ns Namespace, name string, data []byte) (string, error)
	// Get returns the bytes stored under key or an error matching types.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key or returns an error matching types.ErrNotFound.
	Delete(ctx context.Context, key string) error
	// List returns every object in a namespace.
	List(ctx context.Context, ns Namespace) ([]Object, error)
}

// NewKey builds a storage key: "<namespace>/<uuid><ext>".
func NewKey(ns Namespace, name string) string {
	return string(ns) + "/" + uuid.NewString() + Ext(name)
}

// Ext returns a lower-cased, sanitized extension of name including the dot,
// or "" when name has no usable extension.
func Ext(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if len(ext) < 2 || len(ext) > maxExtLen+1 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// ValidateKey checks that key names a single object inside a known namespace.
func ValidateKey(key string) error {
	ns, file, ok := strings.Cut(key, "/")
	if !ok || file == "" || strings.ContainsAny(file, "/\\") || file == "." || file == ".." {
		return fmt.Errorf("%w: malformed blob key %q", types.ErrInvalidArgument, key)
	}
	if !knownNamespace(Namespace(ns)) {
		return fmt.Errorf("%w: unknown blob namespace %q", types.ErrInvalidArgument, ns)
	}
	return nil
}

func knownNamespace(ns Namespace) bool {
	for _, known := range Namespaces {
		if ns == known {
			return true
		}
	}
	return false
}

func checkNamespace(ns Namespace) error {
	if !knownNamespace(ns) {
		return fmt.Errorf("%w: unknown blob namespace %q", types.ErrInvalidArgument, ns)
	}
	return nil
}

func notFound(key string) error {
	return fmt.Errorf("blob %q: %w", key, types.ErrNotFound)
}

func exists(key string) error {
	return fmt.Errorf("blob %q already exists: %w", key, types.ErrConflict)
}
