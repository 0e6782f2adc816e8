package parser

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLineLength bounds a single text line.
const DefaultMaxLineLength = 1024 * 1024

// TextOptions configures a TextParser.
type TextOptions struct {
	// Include, when set, keeps only matching lines.
	Include *regexp.Regexp

	// Exclude drops matching lines. Applied after Include.
	Exclude *regexp.Regexp

	// Timestamps switches output to Columns{ts_ms, line}.
	Timestamps *TimestampExtractor

	// MaxLineLength caps a line, newline excluded. Longer lines are
	// truncated to this length. Zero means DefaultMaxLineLength.
	MaxLineLength int
}

// TextParser splits newline-delimited text into one item per line.
type TextParser struct {
	opts TextOptions

	// discarding is set while the remainder of a truncated line is
	// being skipped.
	discarding bool
}

// NewTextParser creates a TextParser.
func NewTextParser(opts TextOptions) *TextParser {
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	return &TextParser{opts: opts}
}

// Parse returns an item for every complete line at the front of data.
// A trailing partial line is left for the next call unless it is
// already longer than MaxLineLength. Such a line yields its first
// MaxLineLength bytes and the rest of it is consumed as skipped items.
func (p *TextParser) Parse(data []byte, tsHint *uint64) ([]Item, error) {
	var items []Item
	rest := data
	limit := p.opts.MaxLineLength

	for len(rest) > 0 {
		idx := bytes.IndexByte(rest, '\n')

		if p.discarding {
			if idx < 0 {
				items = append(items, Item{Consumed: len(rest)})
				break
			}
			items = append(items, Item{Consumed: idx + 1})
			rest = rest[idx+1:]
			p.discarding = false
			continue
		}

		if idx < 0 {
			if len(rest) > limit {
				items = append(items, Item{Consumed: len(rest), Record: p.record(rest[:limit], tsHint)})
				p.discarding = true
			}
			break
		}

		line := rest[:idx]
		if idx > limit {
			line = line[:limit]
		}
		items = append(items, Item{Consumed: idx + 1, Record: p.record(line, tsHint)})
		rest = rest[idx+1:]
	}

	if len(items) == 0 {
		return nil, ErrIncomplete
	}
	return items, nil
}

func (p *TextParser) record(raw []byte, tsHint *uint64) *Record {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})

	var line string
	if utf8.Valid(raw) {
		line = string(raw)
	} else {
		line = strings.ToValidUTF8(string(raw), "�")
	}

	if p.opts.Include != nil && !p.opts.Include.MatchString(line) {
		return nil
	}
	if p.opts.Exclude != nil && p.opts.Exclude.MatchString(line) {
		return nil
	}

	if p.opts.Timestamps == nil {
		rec := Message(line)
		return &rec
	}

	// Lines without a usable timestamp fall back to the source hint, then 0.
	var ts uint64
	if ms, err := p.opts.Timestamps.ExtractMillis(line); err == nil {
		ts = ms
	} else if tsHint != nil {
		ts = *tsHint
	}
	rec := Columns(strconv.FormatUint(ts, 10), line)
	return &rec
}
