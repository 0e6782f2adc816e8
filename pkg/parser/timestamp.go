package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Layouts for numeric epoch timestamps. They are accepted wherever a Go
// time layout is.
const (
	LayoutUnixSeconds = "UNIX_SECONDS"
	LayoutUnixMillis  = "UNIX_MILLIS"
)

// maxEpochSeconds is 2100-01-01; larger values are not timestamps.
const maxEpochSeconds = 4102444800

// TimestampExtractor pulls a timestamp out of a log line using the first
// capture group of pattern and a Go time layout.
type TimestampExtractor struct {
	pattern  *regexp.Regexp
	layout   string
	location *time.Location
}

// NewTimestampExtractor creates a new timestamp extractor. Timestamps
// without zone information are interpreted in loc (UTC when nil).
func NewTimestampExtractor(pattern *regexp.Regexp, layout string, loc *time.Location) *TimestampExtractor {
	if loc == nil {
		loc = time.UTC
	}
	return &TimestampExtractor{
		pattern:  pattern,
		layout:   layout,
		location: loc,
	}
}

// Extract returns the parsed time, or an error when the pattern does not
// match or the capture does not fit the layout.
func (e *TimestampExtractor) Extract(line string) (time.Time, error) {
	matches := e.pattern.FindStringSubmatch(line)
	if len(matches) < 2 {
		return time.Time{}, fmt.Errorf("timestamp pattern did not match")
	}
	return ParseTimestamp(matches[1], e.layout, e.location)
}

// ParseTimestamp parses s with layout, which may also be LayoutUnixSeconds
// or LayoutUnixMillis. A nil loc means UTC.
func ParseTimestamp(s, layout string, loc *time.Location) (time.Time, error) {
	switch layout {
	case LayoutUnixSeconds, LayoutUnixMillis:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
		ts := time.Unix(n, 0)
		if layout == LayoutUnixMillis {
			ts = time.UnixMilli(n)
		}
		if secs := ts.Unix(); secs < 0 || secs > maxEpochSeconds {
			return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
		}
		return ts.UTC(), nil
	}

	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts, nil
}

// ExtractMillis is Extract reduced to milliseconds since the Unix epoch.
// Times before the epoch are reported as an error.
func (e *TimestampExtractor) ExtractMillis(line string) (uint64, error) {
	ts, err := e.Extract(line)
	if err != nil {
		return 0, err
	}
	ms := ts.UnixMilli()
	if ms < 0 {
		return 0, fmt.Errorf("timestamp %v precedes the epoch", ts)
	}
	return uint64(ms), nil
}
