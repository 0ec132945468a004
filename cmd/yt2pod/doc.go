// Command yt2pod is the operator CLI for the podcast ingestion engine.
//
// Ingestion commands (add, upload) run the pipeline in-process against the
// shared state database and feed, or hand the request to a running daemon
// with --daemon. The remaining commands inspect and maintain jobs,
// transcripts, the feed document and the configuration.
package main
