package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// DefaultQuality is the JPEG quality used for stored frames.
const DefaultQuality = 80

var errEmptyImage = errors.New("image has no pixels")

// JPEGResizer downscales frames to a target width, keeping the aspect ratio,
// and re-encodes them as JPEG.
type JPEGResizer struct {
	Quality int
}

// NewJPEGResizer creates a JPEGResizer with the default quality.
func NewJPEGResizer() *JPEGResizer {
	return &JPEGResizer{Quality: DefaultQuality}
}

// Resize decodes data, scales it to width (never upscaling) and returns JPEG bytes.
func (r *JPEGResizer) Resize(data []byte, width int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errEmptyImage
	}

	out := src
	if width > 0 && b.Dx() > width {
		height := b.Dy() * width / b.Dx()
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	quality := r.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
