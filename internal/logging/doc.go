// Package logging assembles structured slog loggers and formatting helpers used
// across yt2pod services.
//
// It owns the console and JSON handlers, rotates the log file through
// lumberjack, and exposes context-aware helpers so pipeline code can tag log
// lines with job IDs, episode GUIDs, stages, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
