package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/logging"

	"github.com/disintegration/imaging"
)

const (
	// DefaultThumbnailSize is the bounding box edge in pixels.
	DefaultThumbnailSize = 200
	// DefaultThumbnailQuality is the JPEG quality of encoded thumbnails.
	DefaultThumbnailQuality = 80
)

// ErrNotImage is returned when a producer is asked for a non-image entry.
var ErrNotImage = errors.New("media: entry is not an image")

// Thumbnail is an encoded JPEG preview.
type Thumbnail struct {
	Data   []byte `json:"data"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// SizeBytes is the size a thumbnail is accounted as in the artifact cache.
func (t Thumbnail) SizeBytes() int64 {
	return int64(len(t.Data)) + 16
}

// CloneThumbnail returns a copy that does not share Data.
func CloneThumbnail(t Thumbnail) Thumbnail {
	t.Data = bytes.Clone(t.Data)
	return t
}

type ThumbnailGenerator struct {
	size    int
	quality int
}

// NewThumbnailGenerator creates a generator fitting images into a size x size box.
func NewThumbnailGenerator(size int) *ThumbnailGenerator {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	logging.Debug("ThumbnailGenerator: size %dpx, quality %d", size, DefaultThumbnailQuality)
	return &ThumbnailGenerator{size: size, quality: DefaultThumbnailQuality}
}

// Size returns the bounding box edge in pixels.
func (t *ThumbnailGenerator) Size() int {
	return t.size
}

// Generate decodes entry, applies its EXIF orientation and returns a JPEG
// thumbnail. Its signature matches artifacts.ComputeFunc.
func (t *ThumbnailGenerator) Generate(ctx context.Context, entry classify.FileEntry) (Thumbnail, error) {
	if !entry.IsImage {
		return Thumbnail{}, fmt.Errorf("%w: %s", ErrNotImage, entry.Path)
	}

	logging.Debug("Thumbnail generating: %s", entry.Path)

	img, err := LoadImageConstrained(ctx, entry.Path, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("thumbnail generation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Thumbnail{}, err
	}

	thumb := imaging.Fit(img, t.size, t.size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: t.quality}); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	b := thumb.Bounds()
	return Thumbnail{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}
