// Package artifacts caches values derived from image files, such as
// thumbnails and decoded metadata, keyed by file fingerprint.
//
// A DerivedCache sits on top of a cache.Store. On a miss, GetOrCompute
// consults an optional persistent Tier and then the caller's compute
// function, making sure concurrent callers for the same fingerprint share
// one computation.
package artifacts
