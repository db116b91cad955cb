package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFileStorageSequentialRead(t *testing.T) {
	path := writeTempFile(t, []byte("hello world"))
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	out, err := f.Read(5, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)

	out, err = f.Read(6, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte(" world"), out)
}

func TestFileStorageEndOfStreamWithoutFlags(t *testing.T) {
	path := writeTempFile(t, []byte("ab"))
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Read(5, ReadFlags{})
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestFileStorageAllowPartial(t *testing.T) {
	path := writeTempFile(t, []byte("ab"))
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	out, err := f.Read(5, ReadFlags{AllowPartial: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), out)
}

func TestFileStoragePeekDoesNotAdvance(t *testing.T) {
	path := writeTempFile(t, []byte("abcdef"))
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	out, err := f.Read(3, ReadFlags{Peek: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	out, err = f.Read(3, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

func TestFileStorageSeekabilityDetectedAndBackwardSeekWorks(t *testing.T) {
	path := writeTempFile(t, []byte("0123456789"))
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, f.CanSeekBack(true))

	_, err = f.Read(8, ReadFlags{})
	require.NoError(t, err)

	require.NoError(t, f.SeekTo(2))
	out, err := f.Read(3, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), out)

	require.NoError(t, f.SeekFromBack(4))
	out, err = f.Read(4, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte("6789"), out)
}

func TestFileStorageCloseReleasesHandle(t *testing.T) {
	path := writeTempFile(t, []byte("x"))
	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
