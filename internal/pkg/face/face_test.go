package face

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) storage.FileStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir(), "http://localhost/uploads")
	require.NoError(t, err)
	_, err = s.Upload(context.Background(), strings.NewReader("submitted"), "attendance/in.jpg", "image/jpeg")
	require.NoError(t, err)
	_, err = s.Upload(context.Background(), strings.NewReader("reference"), "faces/emp-1.jpg", "image/jpeg")
	require.NoError(t, err)
	return s
}

func formFile(t *testing.T, r *http.Request, field string) string {
	f, _, err := r.FormFile(field)
	if !assert.NoError(t, err) {
		return ""
	}
	defer f.Close()
	b, _ := io.ReadAll(f)
	return string(b)
}

func TestRemoteVerifier_Verify(t *testing.T) {
	tests := []struct {
		name     string
		response verifyResponse
		status   int
		want     bool
		wantErr  bool
	}{
		{name: "match", response: verifyResponse{Match: true, Distance: 0.4, Faces: 1}, status: http.StatusOK, want: true},
		{name: "no match", response: verifyResponse{Match: false, Distance: 0.8, Faces: 1}, status: http.StatusOK, want: false},
		{name: "distance above tolerance", response: verifyResponse{Match: true, Distance: 0.65, Faces: 1}, status: http.StatusOK, want: false},
		{name: "multiple faces", response: verifyResponse{Match: true, Distance: 0.1, Faces: 2}, status: http.StatusOK, want: false},
		{name: "service error", status: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
				if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
					return
				}
				assert.Equal(t, "submitted", formFile(t, r, "photo"))
				assert.Equal(t, "reference", formFile(t, r, "reference"))
				assert.Equal(t, "0.60", r.FormValue("tolerance"))

				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer srv.Close()

			v := NewRemoteVerifier(config.FaceConfig{VerifyURL: srv.URL, APIKey: "secret"}, newStore(t), srv.Client())
			got, err := v.Verify(context.Background(), "attendance/in.jpg", "faces/emp-1.jpg")
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteVerifier_MissingReference(t *testing.T) {
	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer srv.Close()

	v := NewRemoteVerifier(config.FaceConfig{VerifyURL: srv.URL}, newStore(t), srv.Client())

	got, err := v.Verify(context.Background(), "attendance/in.jpg", "")
	require.NoError(t, err)
	assert.False(t, got)
	assert.False(t, called.Load())

	_, err = v.Verify(context.Background(), "attendance/in.jpg", "faces/ghost.jpg")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewVerifier_RejectsWithoutURL(t *testing.T) {
	v := NewVerifier(config.FaceConfig{}, nil)
	ok, err := v.Verify(context.Background(), "a.jpg", "b.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewVerifier_PassthroughWhenDisabled(t *testing.T) {
	v := NewVerifier(config.FaceConfig{Disabled: true, VerifyURL: "http://face.internal/verify"}, nil)
	ok, err := v.Verify(context.Background(), "a.jpg", "b.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}
