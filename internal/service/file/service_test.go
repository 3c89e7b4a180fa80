package file

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisyImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 31 % 256), G: uint8(y * 17 % 256), B: uint8((x ^ y) % 256), A: 255})
		}
	}
	return img
}

func TestFitImage(t *testing.T) {
	out := fitImage(noisyImage(2560, 1440), 1280)
	assert.Equal(t, 1280, out.Bounds().Dx())
	assert.Equal(t, 720, out.Bounds().Dy())

	small := noisyImage(640, 480)
	assert.Same(t, small, fitImage(small, 1280))
}

func TestCompressImage_PNGBecomesJPEG(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, noisyImage(1600, 1200)))

	out, err := compressImage(buf.Bytes(), maxPhotoSize)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1280, cfg.Width)
}

func TestCompressImage_SmallJPEGUntouched(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, noisyImage(64, 64), nil))

	out, err := compressImage(buf.Bytes(), maxPhotoSize)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out)
}

func TestUploadAttendancePhoto(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(t.TempDir(), "http://localhost/uploads")
	require.NoError(t, err)
	svc := NewFileService(store)

	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, noisyImage(320, 240), nil))

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ref, err := svc.UploadAttendancePhoto(ctx, "emp-1", date, attendance.KindIn, buf, "selfie.JPG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "attendance/2024-03-01/emp-1/in-"), ref)
	assert.True(t, strings.HasSuffix(ref, ".jpg"), ref)

	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.UploadAttendancePhoto(ctx, "emp-1", date, attendance.KindIn, strings.NewReader("x"), "selfie.gif")
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = svc.UploadAttendancePhoto(ctx, "emp-1", date, attendance.KindIn, strings.NewReader("not an image"), "selfie.png")
	assert.Error(t, err)
}
