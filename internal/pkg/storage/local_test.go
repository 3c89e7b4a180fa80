package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/uploads/")
	require.NoError(t, err)

	ref, err := s.Upload(ctx, strings.NewReader("jpeg bytes"), "attendance/emp-1/in.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "attendance/emp-1/in.jpg", ref)

	exists, err := s.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := s.Download(ctx, ref)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "jpeg bytes", string(body))

	url, err := s.GetURL(ctx, ref, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads/attendance/emp-1/in.jpg", url)

	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref))

	_, err = s.Download(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_TraversalStaysInsideBase(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), "http://localhost/uploads")
	require.NoError(t, err)

	ref, err := s.Upload(ctx, strings.NewReader("x"), "../../etc/passwd", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", ref)

	_, err = s.Upload(ctx, strings.NewReader("x"), "..", "text/plain")
	assert.Error(t, err)
}
