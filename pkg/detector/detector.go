// Package detector guesses the timestamp format of text log sources so
// parsers can be configured with timestamp_pattern: auto.
package detector

import (
	"bufio"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ccollicutt/logstream/pkg/parser"
)

// Default sampling limits.
const (
	DefaultSampleLines = 100
	DefaultSampleBytes = 256 * 1024
)

// Result holds the formats found in a sample, best first.
type Result struct {
	Matches []Match
	Sampled int // non-empty, non-comment lines examined
	Parsed  int // lines matched by the best format
}

// Match is one format together with how well it fit the sample.
type Match struct {
	Format     *Format
	Confidence float64 // share of sampled lines matched, 0..1
	Lines      int
	Sample     string
	Parsed     time.Time
}

// Best returns the highest confidence match, or nil.
func (r *Result) Best() *Match {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// Detector tests sampled lines against a set of known formats.
type Detector struct {
	formats     []*Format
	sampleLines int
	sampleBytes int64
	location    *time.Location
}

// Option configures a Detector.
type Option func(*Detector)

// WithSampleSize sets how many lines are sampled. Non-positive values
// are ignored.
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleLines = n
		}
	}
}

// WithLocation sets the zone used for timestamps without one.
func WithLocation(loc *time.Location) Option {
	return func(d *Detector) {
		if loc != nil {
			d.location = loc
		}
	}
}

// New creates a Detector with the built-in formats.
func New(opts ...Option) *Detector {
	d := &Detector{
		formats:     Formats(),
		sampleLines: DefaultSampleLines,
		sampleBytes: DefaultSampleBytes,
		location:    time.UTC,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFile samples the head of the file at path.
func (d *Detector) DetectFile(ctx context.Context, path string) (*Result, error) {
	// #nosec G304 - path comes from the user's configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := d.sample(ctx, f)
	if err != nil {
		return nil, err
	}
	return d.DetectLines(lines), nil
}

// DetectLines runs detection over lines. Empty lines and lines starting
// with '#' are ignored.
func (d *Detector) DetectLines(lines []string) *Result {
	result := &Result{}
	byFormat := make(map[*Format]*Match)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result.Sampled++

		for _, format := range d.formats {
			m := format.re.FindStringSubmatch(line)
			if len(m) < 2 {
				continue
			}
			ts, err := parser.ParseTimestamp(m[1], format.Layout, d.location)
			if err != nil {
				continue
			}
			if byFormat[format] == nil {
				byFormat[format] = &Match{Format: format, Sample: line, Parsed: ts}
			}
			byFormat[format].Lines++
		}
	}

	if result.Sampled == 0 {
		return result
	}
	for _, m := range byFormat {
		m.Confidence = float64(m.Lines) / float64(result.Sampled)
		result.Matches = append(result.Matches, *m)
	}

	// Ties go to the longer, more specific pattern.
	sort.Slice(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.Format.Pattern) != len(b.Format.Pattern) {
			return len(a.Format.Pattern) > len(b.Format.Pattern)
		}
		return a.Format.Name < b.Format.Name
	})
	result.Parsed = result.Matches[0].Lines

	return result
}

func (d *Detector) sample(ctx context.Context, r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(io.LimitReader(r, d.sampleBytes))
	scanner.Buffer(make([]byte, 0, 64*1024), int(d.sampleBytes))

	var lines []string
	for len(lines) < d.sampleLines && scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			lines = append(lines, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
