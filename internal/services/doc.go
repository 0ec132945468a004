// Package services defines shared utilities consumed by the ingestion pipeline,
// the transcript worker, and the HTTP API.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, episode GUIDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified into job messages and HTTP status codes.
package services
