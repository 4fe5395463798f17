// Package main provides the photo-discovery command.
//
// photo-discovery lists photo folders incrementally and produces derived
// artifacts (thumbnails, metadata, validation results) for the images it
// finds. It is also a small harness for the discovery and caching packages:
// everything the commands do goes through a paginated discovery session, the
// size-bounded artifact caches and the memory monitor.
//
// # Commands
//
//	photo-discovery scan <dir>    list a folder page by page
//	photo-discovery thumbs <dir>  fill the artifact caches for a folder
//	photo-discovery stats         print configuration and stored counts
//
// # Configuration
//
// Settings come from defaults, then the YAML file named by --config, then
// PHOTO_* environment variables, then command-line flags. MEMORY_LIMIT and
// MEMORY_RATIO set GOMEMLIMIT before startup; see package memory.
//
// # Observability
//
// With --metrics-addr the command serves Prometheus metrics on /metrics and
// a JSON health document on /healthz while it runs.
package main
