// Package logging configures the process-wide slog logger for repoindex.
//
// Records are JSON encoded. The server writes them to a size-rotated file
// under ~/.repoindex/logs and, optionally, to stderr.
package logging
