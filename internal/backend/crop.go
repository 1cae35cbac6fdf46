package backend

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	_ "image/png" // register PNG decoding for camera frames

	"github.com/edgewatch/fleet-core/internal/pipeline"
)

const (
	// cropPadding is added around the detected region so the
	// identification model sees some context past the face bounds.
	cropPadding = 20

	// cropJPEGQuality for the re-encoded region.
	cropJPEGQuality = 90
)

// CropRegion extracts a padded sub-image around a detected region and
// re-encodes it as JPEG. The padded rectangle is clamped to the image
// bounds; a region that falls entirely outside them is an error.
func CropRegion(data []byte, region pipeline.Box) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	rect := image.Rect(
		region.X-cropPadding,
		region.Y-cropPadding,
		region.X+region.Width+cropPadding,
		region.Y+region.Height+cropPadding,
	).Intersect(src.Bounds())

	if rect.Empty() {
		return nil, ErrEmptyRegion
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), src, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: cropJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding crop: %w", err)
	}
	return buf.Bytes(), nil
}
