package fetcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.zip")

	_, err := NewLocal(path)
	require.Error(t, err)

	var nfe *NotFoundError
	require.True(t, errors.As(err, &nfe))
	assert.Equal(t, path, nfe.Path)
	assert.Contains(t, err.Error(), path)
}

func TestNewLocalRejectsDirectory(t *testing.T) {
	_, err := NewLocal(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestLocalSourceOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip bytes"), 0o644))

	src, err := NewLocal(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Name())
	assert.Equal(t, path, src.Path())

	rc, total, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	assert.Equal(t, int64(9), total)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(got))
}

func TestLocalSourceIsFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	src, err := NewLocal(path)
	require.NoError(t, err)

	var _ Source = src
	_, ok := any(src).(FileSource)
	assert.True(t, ok)
}
