// Package database provides the SQLite second tier for derived artifacts.
//
// Artifacts are stored as opaque blobs keyed by (kind, fingerprint) together
// with the path they were derived from, so that entries for an older version
// of a file can be pruned once its fingerprint changes.
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
