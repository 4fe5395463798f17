package mediatypes

// FileType represents the classification of a filesystem entry.
type FileType string

const (
	// FileTypeFolder represents a directory.
	FileTypeFolder FileType = "folder"
	// FileTypeImage represents a supported image file.
	FileTypeImage FileType = "image"
	// FileTypeOther represents any other file.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps lowercase extensions to whether they are supported image formats.
// Every listed format has a registered decoder in the media package.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// MimeTypes maps image extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".webp": "image/webp",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
func GetFileType(ext string) FileType {
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
