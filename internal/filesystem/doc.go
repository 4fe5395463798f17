/*
Package filesystem provides the directory-listing primitive used by discovery,
plus resilient wrappers around os.Stat, os.Open and os.ReadDir that retry NFS
stale file handle errors.

# Listing

Lister returns (name, isDir, size, mtime) rows for a directory. A failure to
read the directory itself is returned as an error; a failure to describe one
entry is attached to that entry so the caller can skip it and keep going.
LocalLister is the os-backed implementation and follows symlinks.

# Retry Behavior

Only ESTALE (errno 116 on Linux) triggers a retry. Backoff is exponential
with a cap and stops early when the context is cancelled:

  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors fail immediately and are returned unmodified.

# Metrics

The package does not import metrics. Install an Observer at startup:

	filesystem.SetObserver(metrics.NewFilesystemObserver())
*/
package filesystem
