// Package ffprobe decodes ffprobe JSON reports into the duration and size
// figures used to plan segments and fill feed enclosures.
package ffprobe
