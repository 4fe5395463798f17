package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/mediatypes"
)

// Validation records whether a file's content is a decodable image.
type Validation struct {
	Format   string `json:"format"`
	MimeType string `json:"mimeType,omitempty"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

// SizeBytes approximates the memory a Validation value holds.
func (v Validation) SizeBytes() int64 {
	return int64(40 + len(v.Format) + len(v.MimeType) + len(v.Reason))
}

// Validate sniffs the file header and checks that the image configuration
// decodes. Unlike classification it reads file content. A content problem is
// reported in the result, not as an error; errors are I/O failures.
func Validate(ctx context.Context, entry classify.FileEntry) (Validation, error) {
	var v Validation
	err := withFile(ctx, entry.Path, func(r io.Reader) error {
		header := make([]byte, 32)
		n, err := io.ReadFull(r, header)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}
		header = header[:n]

		v.Format = DetectFormat(header)
		if v.Format == "unknown" {
			v.Reason = "unrecognised file header"
			return nil
		}

		if _, format, err := image.DecodeConfig(io.MultiReader(bytes.NewReader(header), r)); err != nil {
			v.Reason = fmt.Sprintf("%s header does not decode: %v", v.Format, err)
		} else {
			v.Format = format
			v.MimeType = mediatypes.GetMimeType("." + format)
			v.Valid = true
		}
		return nil
	})
	return v, err
}

// DetectFormat identifies an image format from its leading bytes.
func DetectFormat(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return "png"

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return "gif"

	case len(header) >= 12 && header[0] == 0x52 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x46 &&
		header[8] == 0x57 && header[9] == 0x45 && header[10] == 0x42 && header[11] == 0x50:
		return "webp"

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return "bmp"

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return "tiff"
	}

	return "unknown"
}
