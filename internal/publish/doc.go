// Package publish pushes the locally persisted feed and media to wherever
// listeners fetch them from: a git checkout served by static hosting, an
// S3-compatible bucket, or nowhere in manual mode.
package publish
