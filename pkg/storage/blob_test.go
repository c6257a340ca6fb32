package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStoreRoundTrip(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	locator, err := store.Put([]byte("%PDF-1.4 test"), "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(locator, ".pdf"))
	assert.Len(t, strings.Split(locator, string(filepath.Separator)), 3)

	data, err := store.Get(locator)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 test"), data)
}

func TestLocalBlobStoreDeduplicates(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Put([]byte("same bytes"), "image/png")
	require.NoError(t, err)
	second, err := store.Put([]byte("same bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := store.Put([]byte("different bytes"), "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestLocalBlobStoreDeleteIdempotent(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	locator, err := store.Put([]byte("bytes"), "image/jpeg")
	require.NoError(t, err)
	require.NoError(t, store.Delete(locator))
	require.NoError(t, store.Delete(locator))

	_, err = store.Get(locator)
	require.Error(t, err)
}

func TestLocalBlobStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)

	secret := filepath.Join(dir, "..", "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o600))
	defer os.Remove(secret)

	_, err = store.Get("../secret.txt")
	require.Error(t, err)
	_, err = store.Get("/etc/passwd")
	require.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", extensionFor("application/pdf"))
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".png", extensionFor("IMAGE/PNG"))
	assert.Equal(t, ".bin", extensionFor("application/zip"))
}
