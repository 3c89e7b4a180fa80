package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/storage"
)

// DefaultTolerance is the largest face distance still accepted as a match.
const DefaultTolerance = 0.6

// RemoteVerifier posts the submitted photo and the employee's reference photo
// to a face comparison service.
type RemoteVerifier struct {
	url       string
	apiKey    string
	tolerance float64
	storage   storage.FileStorage
	client    *http.Client
}

type verifyResponse struct {
	Match    bool    `json:"match"`
	Distance float64 `json:"distance"`
	Faces    int     `json:"faces"`
	Message  string  `json:"message"`
}

// NewVerifier returns a RemoteVerifier. Verification is skipped only when
// explicitly disabled; without a service URL every photo is rejected.
func NewVerifier(cfg config.FaceConfig, files storage.FileStorage) attendance.FaceVerifier {
	if cfg.Disabled {
		slog.Warn("Face verification disabled, every photo is accepted")
		return Passthrough{}
	}
	if cfg.VerifyURL == "" {
		slog.Error("FACE_VERIFY_URL not set, every photo will be rejected")
		return Reject{}
	}
	return NewRemoteVerifier(cfg, files, &http.Client{Timeout: cfg.Timeout})
}

func NewRemoteVerifier(cfg config.FaceConfig, files storage.FileStorage, client *http.Client) *RemoteVerifier {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &RemoteVerifier{
		url:       cfg.VerifyURL,
		apiKey:    cfg.APIKey,
		tolerance: tolerance,
		storage:   files,
		client:    client,
	}
}

// Verify implements attendance.FaceVerifier. A missing reference photo is a
// mismatch, not an error.
func (v *RemoteVerifier) Verify(ctx context.Context, photoRef, referencePhotoRef string) (bool, error) {
	if referencePhotoRef == "" {
		return false, nil
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := v.attach(ctx, mw, "photo", photoRef); err != nil {
		return false, err
	}
	if err := v.attach(ctx, mw, "reference", referencePhotoRef); err != nil {
		return false, err
	}
	if err := mw.WriteField("tolerance", fmt.Sprintf("%.2f", v.tolerance)); err != nil {
		return false, err
	}
	if err := mw.Close(); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, body)
	if err != nil {
		return false, fmt.Errorf("failed to build face verification request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("face verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("face verification service returned status code %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode face verification response: %w", err)
	}

	if out.Faces > 1 {
		slog.Warn("Multiple faces in attendance photo", "photo_ref", photoRef, "faces", out.Faces)
		return false, nil
	}
	slog.Debug("Face verification result", "photo_ref", photoRef, "match", out.Match, "distance", out.Distance)
	return out.Match && out.Distance <= v.tolerance, nil
}

func (v *RemoteVerifier) attach(ctx context.Context, mw *multipart.Writer, field, ref string) error {
	rc, err := v.storage.Download(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to open %s photo: %w", field, err)
	}
	defer rc.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(ref))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("failed to read %s photo: %w", field, err)
	}
	return nil
}

// Passthrough accepts every photo. Used when FACE_VERIFY_DISABLED is set.
type Passthrough struct{}

func (Passthrough) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

// Reject fails every photo as unverified.
type Reject struct{}

func (Reject) Verify(context.Context, string, string) (bool, error) {
	return false, nil
}
