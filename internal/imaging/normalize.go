package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Normalizer downsamples captured frames to a bounded width and re-encodes
// them as JPEG. Bounding the width keeps uploads small and gives the
// detector a predictable input size.
type Normalizer struct {
	maxWidth int
	quality  int
}

func NewNormalizer(maxWidth, quality int) *Normalizer {
	return &Normalizer{maxWidth: maxWidth, quality: quality}
}

// Normalize scales the frame down so its width does not exceed the cap,
// preserving aspect ratio, and re-encodes at the configured quality. Frames
// already within the cap are only re-encoded, which makes the operation
// idempotent up to encoding artifacts.
func (n *Normalizer) Normalize(frame []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > n.maxWidth {
		newWidth := n.maxWidth
		newHeight := int(float64(height) * float64(n.maxWidth) / float64(width))
		if newHeight < 1 {
			newHeight = 1
		}

		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// MaxWidth returns the configured width cap.
func (n *Normalizer) MaxWidth() int {
	return n.maxWidth
}
