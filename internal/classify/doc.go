// Package classify turns directory listing rows into FileEntry values and
// computes their content fingerprints.
//
// Classification is by extension only. A mislabeled or corrupt file is let
// through and fails later at decode time.
//
// A Fingerprint changes whenever size or mtime changes, which lets caches
// keyed by it treat a modified file as a miss without hashing content.
package classify
