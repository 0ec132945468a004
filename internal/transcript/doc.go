// Package transcript tracks per-episode transcription independently of the
// ingestion pipeline.
//
// Each GUID owns one persisted Record moving none -> in_progress -> done or
// error. Every transition is a compare-and-set against the Store, so a
// repeated Trigger never starts a second worker. Workers upload local media
// to the Backend, poll until the remote job settles, then write the text to
// the transcripts directory.
package transcript
