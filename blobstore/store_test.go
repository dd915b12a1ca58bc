package blobstore

import (
	"testing"

	"articlehub/types"

	"github.com/stretchr/testify/assert"
)

func TestExt(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":            ".png",
		"report.docx":          ".docx",
		"archive.tar.gz":       ".gz",
		"noext":                "",
		"dir.d/file":           "",
		`C:\Users\me\pic.jpeg`: ".jpeg",
		"weird.p$p":            "",
		"long.abcdefghijkl":    "",
		"trailing.":            "",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Ext(in), "Ext(%q)", in)
	}
}

func TestNewKeyIsUniqueAndValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := NewKey(Images, "same-name.png")
		assert.NoError(t, ValidateKey(key))
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"images/abc.png", "files/0b2f.docx"}
	invalid := []string{
		"", "images", "images/", "images/../x", "images/a/b", "/images/a",
		"other/a.png", "images/..", `images/a\b`, "../files/a",
	}

	for _, key := range valid {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range invalid {
		assert.ErrorIs(t, ValidateKey(key), types.ErrInvalidArgument, key)
	}
}
