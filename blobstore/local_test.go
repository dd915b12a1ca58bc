package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"articlehub/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(filepath.Join(t.TempDir(), "uploads"))

	key, err := store.Put(ctx, Images, "photo.JPG", []byte("image-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "images/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), got)

	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, key), types.ErrNotFound)
}

func TestLocalSameNameNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())

	first, err := store.Put(ctx, Documents, "report.docx", []byte("one"))
	require.NoError(t, err)
	second, err := store.Put(ctx, Documents, "report.docx", []byte("two"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	got, err := store.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}

func TestLocalCollisionIsConflict(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())
	store.newKey = func(ns Namespace, name string) string { return string(ns) + "/fixed.png" }

	_, err := store.Put(ctx, Images, "a.png", []byte("first"))
	require.NoError(t, err)

	_, err = store.Put(ctx, Images, "b.png", []byte("second"))
	assert.ErrorIs(t, err, types.ErrConflict)

	got, err := store.Get(ctx, "images/fixed.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestLocalCreatesNamespaceDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")
	store := NewLocal(root)

	key, err := store.Put(context.Background(), Documents, "x.docx", []byte("doc"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "files"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.FileExists(t, filepath.Join(root, filepath.FromSlash(key)))
}

func TestLocalRejectsBadKeysAndNamespaces(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocal(filepath.Join(root, "uploads"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("s"), 0o600))

	_, err := store.Get(ctx, "images/../../secret.txt")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = store.Get(ctx, "../secret.txt")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = store.Put(ctx, Namespace("etc"), "x", []byte("x"))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestLocalList(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())

	objects, err := store.List(ctx, Images)
	require.NoError(t, err)
	assert.Empty(t, objects)

	k1, err := store.Put(ctx, Images, "a.png", []byte("aa"))
	require.NoError(t, err)
	k2, err := store.Put(ctx, Images, "b.png", []byte("bbb"))
	require.NoError(t, err)
	_, err = store.Put(ctx, Documents, "c.docx", []byte("c"))
	require.NoError(t, err)

	objects, err = store.List(ctx, Images)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	keys := []string{objects[0].Key, objects[1].Key}
	assert.ElementsMatch(t, []string{k1, k2}, keys)
	for _, o := range objects {
		assert.False(t, o.Modified.IsZero())
		assert.Positive(t, o.Size)
	}
}
