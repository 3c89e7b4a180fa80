package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoding
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/storage"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	// maxPhotoSize is the upper bound for a stored proof photo
	maxPhotoSize = 150 * 1024
	// maxPhotoEdge bounds the longer side of a stored proof photo in pixels
	maxPhotoEdge = 1280
	minQuality   = 50
)

var ErrUnsupportedImage = errors.New("invalid file type: only jpg, jpeg, png allowed")

type FileService interface {
	// UploadAttendancePhoto compresses and stores a proof photo and returns
	// the reference stored on the attendance event
	UploadAttendancePhoto(ctx context.Context, employeeID string, date time.Time, kind attendance.Kind, file io.Reader, filename string) (string, error)

	DeleteFile(ctx context.Context, ref string) error
	GetFileURL(ctx context.Context, ref string, expiry time.Duration) (string, error)
}

type fileServiceImpl struct {
	storage storage.FileStorage
	now     func() time.Time
}

func NewFileService(storage storage.FileStorage) FileService {
	return &fileServiceImpl{
		storage: storage,
		now:     time.Now,
	}
}

// UploadAttendancePhoto implements FileService.
func (s *fileServiceImpl) UploadAttendancePhoto(ctx context.Context, employeeID string, date time.Time, kind attendance.Kind, file io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return "", ErrUnsupportedImage
	}

	buffer, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	compressed, err := compressImage(buffer, maxPhotoSize)
	if err != nil {
		return "", fmt.Errorf("failed to compress image: %w", err)
	}

	// attendance/{date}/{employeeID}/{kind}-{unix}-{uuid}.jpg, always JPEG after compression
	name := fmt.Sprintf("%s-%d-%s.jpg", kind, s.now().Unix(), uuid.Must(uuid.NewV7()).String())
	ref := path.Join("attendance", date.Format(attendance.DateLayout), employeeID, name)

	uploaded, err := s.storage.Upload(ctx, bytes.NewReader(compressed), ref, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload attendance photo: %w", err)
	}
	return uploaded, nil
}

// DeleteFile implements FileService.
func (s *fileServiceImpl) DeleteFile(ctx context.Context, ref string) error {
	return s.storage.Delete(ctx, ref)
}

// GetFileURL implements FileService.
func (s *fileServiceImpl) GetFileURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	return s.storage.GetURL(ctx, ref, expiry)
}

// ==================== HELPER FUNCTIONS ====================

// compressImage re-encodes buffer as JPEG no larger than maxSize where
// possible. Small JPEGs are stored as they are.
func compressImage(buffer []byte, maxSize int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if format == "jpeg" && len(buffer) <= maxSize {
		return buffer, nil
	}

	img = fitImage(img, maxPhotoEdge)

	var compressed []byte
	for quality := 85; quality >= minQuality; quality -= 5 {
		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		compressed = buf.Bytes()
		if len(compressed) <= maxSize {
			break
		}
	}
	return compressed, nil
}

// fitImage scales img down so that its longer side is at most maxEdge.
func fitImage(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}

	if w >= h {
		h = h * maxEdge / w
		w = maxEdge
	} else {
		w = w * maxEdge / h
		h = maxEdge
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
