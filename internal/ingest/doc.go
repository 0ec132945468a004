// Package ingest composes acquisition, transcoding, segmentation and the feed
// store into the pipeline that turns one request into published episodes.
//
// Orchestrator.Validate rejects bad input before a job exists. Orchestrator.Run
// then walks the job through starting, downloading or uploading, converting,
// splitting, feed-update and publishing, and always leaves it terminal. A
// source whose every planned GUID is already in the feed completes as a
// duplicate before any media is fetched.
package ingest
