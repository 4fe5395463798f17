// Package logging provides the leveled logging interface used throughout
// photo-discovery, backed by zap.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (per-entry scan events)
//   - INFO: General operational messages
//   - WARN: Warning conditions (skipped entries, memory pressure)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true as a shortcut. LOG_FORMAT=json selects the JSON encoder.
package logging
