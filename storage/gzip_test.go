package storage

import (
	"bytes"
	stdgzip "compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempGzip(t *testing.T, content []byte) string {
	t.Helper()
	var buf bytes.Buffer
	gw := stdgzip.NewWriter(&buf)
	_, err := gw.Write(content)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "data.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestGzipStorageSequentialRead(t *testing.T) {
	path := writeTempGzip(t, []byte("hello world"))
	g, err := OpenGzip(path)
	require.NoError(t, err)
	defer g.Close()

	out, err := g.Read(5, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)

	out, err = g.Read(6, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte(" world"), out)
}

func TestGzipStorageNotSeekable(t *testing.T) {
	path := writeTempGzip(t, []byte("abcdef"))
	g, err := OpenGzip(path)
	require.NoError(t, err)
	defer g.Close()

	assert.False(t, g.CanSeekBack(true))

	_, err = g.Read(2, ReadFlags{})
	require.NoError(t, err)

	err = g.SeekTo(0)
	assert.ErrorIs(t, err, ErrSeekBackward)

	err = g.SeekFromBack(1)
	assert.ErrorIs(t, err, ErrSeekBackward)
}

func TestGzipStorageForwardSeekDiscards(t *testing.T) {
	path := writeTempGzip(t, []byte("0123456789"))
	g, err := OpenGzip(path)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.SeekTo(5))
	out, err := g.Read(5, ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, []byte("56789"), out)
}

func TestGzipStorageAllowPartialAtEOF(t *testing.T) {
	path := writeTempGzip(t, []byte("ab"))
	g, err := OpenGzip(path)
	require.NoError(t, err)
	defer g.Close()

	out, err := g.Read(10, ReadFlags{AllowPartial: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), out)
}
