package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/erazemk/lostfound/internal/model"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func jpegPhoto(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h, color.RGBA{200, 120, 40, 255}), nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

func pngPhoto(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h, color.RGBA{0, 0, 255, 255})); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestProcessPhotoReencodesAsJPEG(t *testing.T) {
	for name, data := range map[string][]byte{
		"jpeg": jpegPhoto(t, 120, 80),
		"png":  pngPhoto(t, 120, 80),
	} {
		t.Run(name, func(t *testing.T) {
			p, err := ProcessPhoto(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("ProcessPhoto: %v", err)
			}
			if p.MIME != "image/jpeg" {
				t.Errorf("MIME = %s, want image/jpeg", p.MIME)
			}
			if p.Width != 120 || p.Height != 80 {
				t.Errorf("size = %dx%d, want 120x80", p.Width, p.Height)
			}
			if _, err := jpeg.Decode(bytes.NewReader(p.Data)); err != nil {
				t.Errorf("output is not a JPEG: %v", err)
			}
		})
	}
}

func TestProcessPhotoKeepsAspectRatio(t *testing.T) {
	p, err := ProcessPhoto(bytes.NewReader(jpegPhoto(t, 2048, 1024)))
	if err != nil {
		t.Fatalf("ProcessPhoto: %v", err)
	}
	if p.Width != MaxDimension || p.Height != MaxDimension/2 {
		t.Errorf("size = %dx%d, want %dx%d", p.Width, p.Height, MaxDimension, MaxDimension/2)
	}

	img, _, err := image.Decode(bytes.NewReader(p.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got := img.Bounds(); got.Dx() != p.Width || got.Dy() != p.Height {
		t.Errorf("encoded size %dx%d disagrees with reported %dx%d", got.Dx(), got.Dy(), p.Width, p.Height)
	}
}

func TestThumbnail(t *testing.T) {
	p, err := Thumbnail(jpegPhoto(t, 400, 800))
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if p.Width != ThumbnailSize/2 || p.Height != ThumbnailSize {
		t.Errorf("size = %dx%d, want %dx%d", p.Width, p.Height, ThumbnailSize/2, ThumbnailSize)
	}
}

func TestProcessPhotoRejectsBadInput(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"text":      []byte("not a photo"),
		"gif":       []byte("GIF89a......"),
		"truncated": jpegPhoto(t, 50, 50)[:40],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ProcessPhoto(bytes.NewReader(data))
			if !errors.Is(err, model.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestProcessPhotoTooLarge(t *testing.T) {
	data := make([]byte, MaxUploadSize+10)
	copy(data, jpegPhoto(t, 10, 10))
	_, err := ProcessPhoto(bytes.NewReader(data))
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
