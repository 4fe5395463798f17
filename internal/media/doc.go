// Package media produces the derived artifacts cached per image:
// thumbnails, decoded metadata and content validation results.
//
// Every producer has the signature of artifacts.ComputeFunc so it can be
// handed straight to DerivedCache.GetOrCompute. Decoding uses the standard
// image decoders plus golang.org/x/image for WebP, BMP and TIFF, and
// applies EXIF orientation.
package media
