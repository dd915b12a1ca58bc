package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"articlehub/types"
)

// Local stores blobs as files below a root directory.
type Local struct {
	root   string
	newKey func(ns Namespace, name string) string
}

// NewLocal returns a filesystem store rooted at dir. The directory is created lazily.
func NewLocal(dir string) *Local {
	return &Local{root: dir, newKey: NewKey}
}

// Root is the directory blobs are written below.
func (l *Local) Root() string { return l.root }

func (l *Local) Put(ctx context.Context, ns Namespace, name string, data []byte) (string, error) {
	if err := checkNamespace(ns); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(l.root, string(ns))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", types.StorageError("create blob namespace", err)
	}

	key := l.newKey(ns, name)
	p := l.path(key)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", exists(key)
	}
	if err != nil {
		return "", types.StorageError("create blob", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(p)
		return "", types.StorageError("write blob", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(p)
		return "", types.StorageError("sync blob", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return "", types.StorageError("close blob", err)
	}
	return key, nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, types.StorageError("read blob", err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(key)
	}
	if err != nil {
		return types.StorageError("delete blob", err)
	}
	return nil
}

func (l *Local) List(ctx context.Context, ns Namespace) ([]Object, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(l.root, string(ns)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, types.StorageError("list blobs", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{
			Key:      string(ns) + "/" + e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}
