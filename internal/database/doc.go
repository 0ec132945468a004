// Package database owns the sqlite state file shared by the job tracker and
// the transcript store.
//
// It applies WAL and busy-timeout pragmas, creates the schema on first open,
// refuses databases written by an incompatible schema version, and exposes
// busy-retrying Exec/Query helpers so callers never see transient
// SQLITE_BUSY failures from concurrent daemon and CLI access.
package database
