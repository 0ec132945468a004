// Package segment plans and performs the division of long audio into
// bounded-duration parts.
//
// Plan and ShouldSplit are pure; Splitter drives a Cutter (ffmpeg stream copy
// in production) and guarantees that a failed cut leaves no part files behind.
package segment
