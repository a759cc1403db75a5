// Package logging wires log/slog to a size-rotated JSON log file under the
// user's ~/.semindex/logs directory, optionally mirrored to stderr.
//
// The stdio tool server must never write to stdout or stderr, so it uses
// SetupServeMode, which logs to the file only.
package logging
