// Package mediatypes holds the dependency-free file type tables shared by the
// classifier and the media decoders.
//
// Extensions are matched lowercase with the leading dot:
//
//	ext := strings.ToLower(filepath.Ext(name))
//	if mediatypes.GetFileType(ext) == mediatypes.FileTypeImage {
//	    // candidate for thumbnails
//	}
package mediatypes
