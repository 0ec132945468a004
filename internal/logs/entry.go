package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"yt2pod/internal/logging"
)

// Entry is one decoded log line.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	JobID     int64
	Attrs     map[string]any
	Raw       string
}

// Parse decodes a JSON log line. Lines that are not JSON objects report false.
func Parse(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return Entry{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{}, false
	}
	entry := Entry{Raw: line, Attrs: map[string]any{}}
	for key, value := range fields {
		switch key {
		case slog.TimeKey:
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case slog.LevelKey:
			if s, ok := value.(string); ok {
				_ = entry.Level.UnmarshalText([]byte(s))
			}
		case slog.MessageKey:
			entry.Message, _ = value.(string)
		case logging.FieldComponent:
			entry.Component, _ = value.(string)
		case logging.FieldJobID:
			if n, ok := value.(float64); ok {
				entry.JobID = int64(n)
			}
		case slog.SourceKey:
		default:
			entry.Attrs[key] = value
		}
	}
	return entry, true
}

// Filter selects entries. The zero Filter matches every entry at info level
// or above.
type Filter struct {
	JobID    int64
	MinLevel slog.Level
	// Component restricts entries to one logger component.
	Component string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.JobID != 0 && e.JobID != f.JobID {
		return false
	}
	if e.Level < f.MinLevel {
		return false
	}
	if f.Component != "" && !strings.EqualFold(f.Component, e.Component) {
		return false
	}
	return true
}

// Format renders e as a single human-readable line.
func Format(e Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", e.Level.String())
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(": ")
	}
	if e.JobID != 0 {
		fmt.Fprintf(&b, "job %d ", e.JobID)
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for key := range e.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Attrs[key])
	}
	return b.String()
}
