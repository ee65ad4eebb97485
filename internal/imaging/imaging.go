// Package imaging normalizes item photos uploaded with lost and found reports.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/erazemk/lostfound/internal/model"
)

// Defaults for photo processing.
const (
	MaxDimension  = 1024
	ThumbnailSize = 256
	JPEGQuality   = 85
	MaxUploadSize = 10 << 20
)

// accepted maps sniffed content types to their decoders.
var accepted = map[string]func(io.Reader) (image.Image, error){
	"image/jpeg": jpeg.Decode,
	"image/png":  png.Decode,
	"image/webp": webp.Decode,
}

// Photo is a re-encoded item photo ready for storage.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// ProcessPhoto reads an uploaded photo, checks its real format, shrinks it to
// fit within MaxDimension and re-encodes it as JPEG. Bad input is reported as
// a validation error.
func ProcessPhoto(r io.Reader) (*Photo, error) {
	return process(r, MaxDimension)
}

// Thumbnail shrinks a stored photo for list views.
func Thumbnail(data []byte) (*Photo, error) {
	return process(bytes.NewReader(data), ThumbnailSize)
}

func process(r io.Reader, maxDim int) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, model.Errorf(model.ErrValidation, "photo exceeds %d bytes", MaxUploadSize)
	}
	if len(data) == 0 {
		return nil, model.Errorf(model.ErrValidation, "photo is empty")
	}

	// Client headers are not trusted.
	detected := http.DetectContentType(data)
	decode, ok := accepted[detected]
	if !ok {
		return nil, model.Errorf(model.ErrValidation, "unsupported photo format %s (JPEG, PNG or WebP)", detected)
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, model.Errorf(model.ErrValidation, "decoding photo: %v", err)
	}

	img = fit(img, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	b := img.Bounds()
	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales img down, keeping its aspect ratio, so neither side exceeds
// maxDim. Smaller images are returned as is.
func fit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(h*maxDim/w, 1)
	} else {
		newW = max(w*maxDim/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
