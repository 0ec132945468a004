// Package logs reads the JSON log files written by yt2pod and yt2podd.
//
// Last returns the newest matching entries with bounded memory, and Follow
// streams entries appended after a given offset, reopening the file when
// lumberjack rotates it. Filters select entries by job id or minimum level.
package logs
