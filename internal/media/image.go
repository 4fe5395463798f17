package media

import (
	"context"
	"fmt"
	"image"
	"io"

	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// MaxImageDimension is the maximum width or height we'll process
	// Images larger than this will be downscaled first
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels (width * height) we'll process
	// A 50MP image would be ~50,000,000 pixels, which uses ~200MB in RGBA
	MaxImagePixels = 20_000_000 // ~20MP, uses ~80MB in RGBA
)

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
	Format string
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(ctx context.Context, path string) (ImageDimensions, error) {
	var dims ImageDimensions
	err := withFile(ctx, path, func(r io.Reader) error {
		config, format, err := image.DecodeConfig(r)
		if err != nil {
			return err
		}
		dims = ImageDimensions{Width: config.Width, Height: config.Height, Format: format}
		return nil
	})
	return dims, err
}

// LoadImageConstrained loads an image with EXIF orientation applied,
// downscaling if it exceeds size limits. This prevents OOM when processing
// very large images.
func LoadImageConstrained(ctx context.Context, path string, maxDimension, maxPixels int) (image.Image, error) {
	dims, err := GetImageDimensions(ctx, path)
	if err != nil {
		logging.Debug("Could not get image dimensions for %s: %v, loading unconstrained", path, err)
		return decodeOriented(ctx, path)
	}

	width, height := dims.Width, dims.Height
	pixels := width * height
	logging.Debug("Image %s dimensions: %dx%d (%d pixels)", path, width, height, pixels)

	img, err := decodeOriented(ctx, path)
	if err != nil {
		return nil, err
	}

	if width <= maxDimension && height <= maxDimension && pixels <= maxPixels {
		return img, nil
	}

	targetWidth, targetHeight := constrain(width, height, maxDimension, maxPixels)
	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)

	// Orientation may have swapped the axes.
	if b := img.Bounds(); width != height && b.Dx() == height && b.Dy() == width {
		targetWidth, targetHeight = targetHeight, targetWidth
	}
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// constrain scales width x height down to fit maxDimension and maxPixels,
// keeping the aspect ratio.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if targetPixels := targetWidth * targetHeight; targetPixels > maxPixels {
		scale := float64(maxPixels) / float64(targetPixels)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	return max(targetWidth, 1), max(targetHeight, 1)
}

func decodeOriented(ctx context.Context, path string) (image.Image, error) {
	var img image.Image
	err := withFile(ctx, path, func(r io.Reader) error {
		var err error
		img, err = imaging.Decode(r, imaging.AutoOrientation(true))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// withFile opens path with stale-handle retry and hands it to fn.
func withFile(ctx context.Context, path string, fn func(io.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := filesystem.OpenWithRetry(ctx, path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	return fn(file)
}
