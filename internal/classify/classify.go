package classify

import (
	"encoding/binary"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/mediatypes"
)

// Fingerprint identifies one version of a file's content by path, size and mtime.
type Fingerprint uint64

// String returns the fingerprint as 16 lowercase hex digits.
func (f Fingerprint) String() string {
	s := strconv.FormatUint(uint64(f), 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}

// ParseFingerprint parses the String form.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return Fingerprint(v), nil
}

// FileEntry is one filesystem object observed during a scan. Entries are
// never mutated; a changed file produces a new entry with a new fingerprint.
type FileEntry struct {
	Path                string
	Name                string
	IsDirectory         bool
	IsImage             bool
	SizeBytes           int64
	ModifiedAtUnixNanos int64
	Fingerprint         Fingerprint
}

// Type returns the entry's media type.
func (e FileEntry) Type() mediatypes.FileType {
	switch {
	case e.IsDirectory:
		return mediatypes.FileTypeFolder
	case e.IsImage:
		return mediatypes.FileTypeImage
	default:
		return mediatypes.FileTypeOther
	}
}

// ComputeFingerprint hashes (path, size, mtime) with xxhash64. The path is
// followed by a zero byte and fixed-width integers, so distinct tuples never
// serialize to the same bytes.
func ComputeFingerprint(path string, sizeBytes, modifiedAtUnixNanos int64) Fingerprint {
	var buf [17]byte
	buf[0] = 0
	binary.LittleEndian.PutUint64(buf[1:9], uint64(sizeBytes))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(modifiedAtUnixNanos))

	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.Write(buf[:])
	return Fingerprint(d.Sum64())
}

// IsSupportedImage reports whether path has a supported image extension,
// case-insensitively. File contents are not inspected.
func IsSupportedImage(path string) bool {
	return mediatypes.GetFileType(strings.ToLower(filepath.Ext(path))) == mediatypes.FileTypeImage
}

// Classify builds a FileEntry for a listed entry of dir.
func Classify(dir string, de filesystem.DirEntry) FileEntry {
	path := filepath.Join(dir, de.Name)
	mtime := de.ModTimeUnixNanos

	entry := FileEntry{
		Path:                path,
		Name:                de.Name,
		IsDirectory:         de.IsDir,
		SizeBytes:           de.SizeBytes,
		ModifiedAtUnixNanos: mtime,
	}
	if !de.IsDir {
		entry.IsImage = IsSupportedImage(de.Name)
	}
	entry.Fingerprint = ComputeFingerprint(path, entry.SizeBytes, mtime)
	return entry
}

// IsHidden reports whether name is a dot-file.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
