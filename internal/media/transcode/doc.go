// Package transcode wraps ffmpeg for the two operations the pipeline needs:
// re-encoding downloads into the feed's audio format and stream-copy cutting
// of long sources into parts. FFmpeg satisfies segment.Cutter.
package transcode
