package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/config"
)

func newLocal(t *testing.T) Storage {
	t.Helper()
	s, err := NewLocal(config.StorageConfig{LocalDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "uploads/a.pdf", strings.NewReader("%PDF-1.4"), PutObjectOptions{Size: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	rc, got, err := s.Get(ctx, "uploads/a.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, int64(8), got.Size)

	require.NoError(t, s.Delete(ctx, "uploads/a.pdf"))
	_, err = s.Stat(ctx, "uploads/a.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.NoError(t, s.Delete(ctx, "uploads/a.pdf"), "deleting a missing key is not an error")
}

func TestLocalStorage_Missing(t *testing.T) {
	s := newLocal(t)

	_, _, err := s.Get(context.Background(), "uploads/none.bin")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"../secret", "uploads/../../etc/passwd", ""} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), PutObjectOptions{Size: 1})
		assert.Error(t, err, key)
	}
}

func TestLocalStorage_ShortWrite(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "uploads/b.bin", strings.NewReader("abc"), PutObjectOptions{Size: 10})
	assert.ErrorContains(t, err, "short write")

	_, err = s.Stat(ctx, "uploads/b.bin")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(config.StorageConfig{Driver: "ftp"}, config.MinIOConfig{})
	assert.Error(t, err)
}

func TestNewMinIO_Validation(t *testing.T) {
	_, err := NewMinIO(config.MinIOConfig{})
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewMinIO(config.MinIOConfig{Endpoint: "localhost:9000"})
	assert.ErrorContains(t, err, "credentials")

	_, err = NewMinIO(config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.ErrorContains(t, err, "bucket")
}
