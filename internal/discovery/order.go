package discovery

import (
	"path/filepath"
	"sort"
	"strings"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/filesystem"
)

const separator = string(filepath.Separator)

// SortKey is the key path order sorts by: the path, with a trailing
// separator for directories. Walking siblings in key order depth-first
// yields keys in global byte-wise order.
func SortKey(entry classify.FileEntry) string {
	if entry.IsDirectory {
		return entry.Path + separator
	}
	return entry.Path
}

func nameKey(de filesystem.DirEntry) string {
	if de.IsDir {
		return de.Name + separator
	}
	return de.Name
}

func sortEntries(entries []filesystem.DirEntry, order Order) {
	switch order {
	case OrderMtime:
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i].ModTimeUnixNanos, entries[j].ModTimeUnixNanos
			if a != b {
				return a > b
			}
			return nameKey(entries[i]) < nameKey(entries[j])
		})
	default:
		sort.Slice(entries, func(i, j int) bool {
			return nameKey(entries[i]) < nameKey(entries[j])
		})
	}
}

// position describes where a key sits relative to a resume point.
type position int

const (
	// positionAfter: yield and descend normally.
	positionAfter position = iota
	// positionAncestor: the resume point is this directory or inside it; descend without yielding.
	positionAncestor
	// positionBefore: already delivered, skip the whole subtree.
	positionBefore
)

func locate(key, after string) position {
	if after == "" || key > after {
		return positionAfter
	}
	if strings.HasSuffix(key, separator) && strings.HasPrefix(after, key) {
		return positionAncestor
	}
	return positionBefore
}
