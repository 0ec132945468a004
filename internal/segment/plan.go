package segment

// DefaultMaxSeconds is the part length used when no positive maximum is configured.
const DefaultMaxSeconds = 3600

// Segment is one bounded slice of a longer source.
type Segment struct {
	PartIndex          int `json:"part_index"`
	TotalParts         int `json:"total_parts"`
	StartOffsetSeconds int `json:"start_offset_seconds"`
	DurationSeconds    int `json:"duration_seconds"`
}

// EndSeconds returns the exclusive end offset of the segment.
func (s Segment) EndSeconds() int {
	return s.StartOffsetSeconds + s.DurationSeconds
}

// ShouldSplit reports whether a source of totalSeconds must be physically cut.
// Callers check this before invoking a Splitter.
func ShouldSplit(totalSeconds, maxSeconds int) bool {
	if maxSeconds <= 0 {
		maxSeconds = DefaultMaxSeconds
	}
	return totalSeconds > maxSeconds
}

// Plan divides totalSeconds into contiguous segments of at most maxSeconds.
// Full-length segments are emitted greedily and the remainder becomes its own
// final segment. A non-positive total yields no segments.
func Plan(totalSeconds, maxSeconds int) []Segment {
	if totalSeconds <= 0 {
		return nil
	}
	if maxSeconds <= 0 {
		maxSeconds = DefaultMaxSeconds
	}
	if totalSeconds <= maxSeconds {
		return []Segment{{PartIndex: 1, TotalParts: 1, StartOffsetSeconds: 0, DurationSeconds: totalSeconds}}
	}

	count := (totalSeconds + maxSeconds - 1) / maxSeconds
	segments := make([]Segment, 0, count)
	for start := 0; start < totalSeconds; start += maxSeconds {
		duration := min(maxSeconds, totalSeconds-start)
		segments = append(segments, Segment{
			PartIndex:          len(segments) + 1,
			TotalParts:         count,
			StartOffsetSeconds: start,
			DurationSeconds:    duration,
		})
	}
	return segments
}
