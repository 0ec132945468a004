// Package acquire turns an ingestion request into a local media file.
//
// YouTube sources are validated with ParseYouTubeURL, described with
// YTDLP.Metadata, then fetched by YTDLP.Download, which streams yt-dlp
// progress lines as jobs.ProgressEvent values. Uploaded files go through
// ValidateUpload before a job exists and ImportUpload once it runs.
package acquire
