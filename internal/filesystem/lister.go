package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name             string
	IsDir            bool
	SizeBytes        int64
	ModTimeUnixNanos int64
	// IsSymlink is set for symbolic links; the other fields describe the target.
	IsSymlink bool
	// Err is set when the entry was listed but its metadata could not be read
	// (vanished between readdir and stat, dangling symlink, permission denied).
	Err error
}

// Lister is the directory-listing primitive discovery is built on.
// OS errors are passed through unmodified so callers can decide whether
// a failure is fatal for the root or skippable for an entry.
type Lister interface {
	// ReadDir lists dir. The returned error is non-nil only when dir itself
	// could not be read; per-entry failures are reported in DirEntry.Err.
	ReadDir(ctx context.Context, dir string) ([]DirEntry, error)
	// Stat describes a single path.
	Stat(ctx context.Context, path string) (DirEntry, error)
}

// LocalLister lists the local filesystem with ESTALE retries.
// Symlinks are followed: a link to a directory is reported as a directory.
type LocalLister struct {
	Retry RetryConfig
}

// NewLocalLister creates a LocalLister with the default retry configuration.
func NewLocalLister() *LocalLister {
	return &LocalLister{Retry: DefaultRetryConfig()}
}

// ReadDir implements Lister.
func (l *LocalLister) ReadDir(ctx context.Context, dir string) ([]DirEntry, error) {
	raw, err := ReadDirWithRetry(ctx, dir, l.Retry)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(raw))
	for _, de := range raw {
		entries = append(entries, l.describe(ctx, dir, de))
	}
	return entries, nil
}

// Stat implements Lister.
func (l *LocalLister) Stat(ctx context.Context, path string) (DirEntry, error) {
	info, err := StatWithRetry(ctx, path, l.Retry)
	if err != nil {
		return DirEntry{Name: filepath.Base(path)}, err
	}
	return fromFileInfo(filepath.Base(path), info), nil
}

func (l *LocalLister) describe(ctx context.Context, dir string, de os.DirEntry) DirEntry {
	name := de.Name()

	symlink := de.Type()&fs.ModeSymlink != 0

	var info fs.FileInfo
	var err error
	if symlink {
		info, err = StatWithRetry(ctx, filepath.Join(dir, name), l.Retry)
	} else {
		info, err = de.Info()
	}
	if err != nil {
		return DirEntry{Name: name, IsDir: de.IsDir(), IsSymlink: symlink, Err: err}
	}
	entry := fromFileInfo(name, info)
	entry.IsSymlink = symlink
	return entry
}

func fromFileInfo(name string, info fs.FileInfo) DirEntry {
	entry := DirEntry{
		Name:  name,
		IsDir: info.IsDir(),
	}
	if mtime := info.ModTime(); !mtime.IsZero() {
		entry.ModTimeUnixNanos = mtime.UnixNano()
	}
	if !entry.IsDir {
		entry.SizeBytes = info.Size()
	}
	return entry
}
