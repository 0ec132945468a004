// Package daemon coordinates the long-running yt2pod process.
//
// It wires the job tracker, the ingestion runner, the transcript tracker and
// the HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. On start it fails jobs a previous process left active
// and reattaches to remote transcriptions that were already submitted.
//
// Accepted jobs are persisted as pending and executed by a bounded worker
// pool that claims the oldest pending job first; a full pool leaves new jobs
// waiting. When an inbox directory is configured, files dropped into it are
// staged under the temp directory and submitted as upload jobs once they stop
// changing.
//
// Keep orchestration logic here: pipeline steps live in internal/ingest
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
