/*
Package discovery walks photo folders and yields classified entries as a
lazy, cancellable sequence.

# Ordering

Siblings are sorted per directory and the tree is walked depth-first. With
OrderPath the sort key is the entry name, plus a trailing separator for
directories, which makes the whole walk come out in byte-wise order of
SortKey. That order is stable across restarts, and ScanAfter uses it to
resume a walk without re-reading subtrees that were already delivered.
OrderMtime sorts newest first within each directory and cannot be resumed.

# Memory policy

Before each yield the engine consults its MemoryGauge:

  - High: the walker's read-ahead buffer shrinks to one entry.
  - Critical: every registered Evicter runs a bulk eviction pass and the
    consumer is held for CriticalPause before the entry is delivered.

# Listing cache

With a ListingCache set, a folder whose mtime has not moved since it was
last listed is served from the cache until the listing's TTL runs out.

# Cancellation

A scan carries the Ticket of the generation it was started under. The
ticket and the context are checked before every yield, so once a session
advances its generation no further entry from the old scan is delivered.

# Errors

A failure to stat or list the root ends the scan with a *RootError, which
matches ErrScanRootUnavailable. Failures below the root become Items with
Skipped set and the walk continues. Symlinked directories are listed but not
descended into.
*/
package discovery
