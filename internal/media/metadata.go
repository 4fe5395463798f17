package media

import (
	"context"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/logging"
)

// Metadata is the small set of decoded facts kept per image.
type Metadata struct {
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Format      string     `json:"format"`
	Orientation int        `json:"orientation"`
	DateTaken   *time.Time `json:"dateTaken,omitempty"`
	CameraMake  string     `json:"cameraMake,omitempty"`
	CameraModel string     `json:"cameraModel,omitempty"`
}

// SizeBytes approximates the memory a Metadata value holds.
func (m Metadata) SizeBytes() int64 {
	return int64(64 + len(m.Format) + len(m.CameraMake) + len(m.CameraModel))
}

// ExtractMetadata reads dimensions from the image header and a few EXIF
// fields when present. Missing EXIF is not an error. Its signature matches
// artifacts.ComputeFunc.
func ExtractMetadata(ctx context.Context, entry classify.FileEntry) (Metadata, error) {
	dims, err := GetImageDimensions(ctx, entry.Path)
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		Width:       dims.Width,
		Height:      dims.Height,
		Format:      dims.Format,
		Orientation: 1,
	}

	err = withFile(ctx, entry.Path, func(r io.Reader) error {
		x, err := exif.Decode(r)
		if err != nil {
			// No EXIF data is not an error
			return nil
		}
		applyExif(&md, x)
		return nil
	})
	if err != nil {
		logging.Debug("Could not read EXIF from %s: %v", entry.Path, err)
	}

	return md, nil
}

func applyExif(md *Metadata, x *exif.Exif) {
	md.CameraMake = getTagString(x, exif.Make)
	md.CameraModel = getTagString(x, exif.Model)

	if dt, err := x.DateTime(); err == nil {
		md.DateTaken = &dt
	}

	if orient, err := x.Get(exif.Orientation); err == nil {
		if v, err := orient.Int(0); err == nil && v >= 1 && v <= 8 {
			md.Orientation = v
		}
	}

	// Orientations 5-8 rotate by 90 degrees; report displayed dimensions.
	if md.Orientation >= 5 {
		md.Width, md.Height = md.Height, md.Width
	}
}

// getTagString extracts a string value from an EXIF tag.
func getTagString(x *exif.Exif, f exif.FieldName) string {
	tag, err := x.Get(f)
	if err != nil {
		return ""
	}
	if tag.Format() == tiff.StringVal {
		s, _ := tag.StringVal()
		return s
	}
	return tag.String()
}
