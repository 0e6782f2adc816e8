package parser

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestTextParser_CompleteLines(t *testing.T) {
	p := NewTextParser(TextOptions{})

	items, err := p.Parse([]byte("one\ntwo\r\nthr"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Parse() returned %d items, want 2", len(items))
	}
	if items[0].Consumed != 4 || items[1].Consumed != 5 {
		t.Errorf("Consumed = %d,%d, want 4,5", items[0].Consumed, items[1].Consumed)
	}
	if items[0].Record.Message != "one" || items[1].Record.Message != "two" {
		t.Errorf("messages = %q,%q, want one,two", items[0].Record.Message, items[1].Record.Message)
	}
}

func TestTextParser_Incomplete(t *testing.T) {
	p := NewTextParser(TextOptions{})

	for _, in := range []string{"", "no newline yet"} {
		_, err := p.Parse([]byte(in), nil)
		if !errors.Is(err, ErrIncomplete) {
			t.Errorf("Parse(%q) error = %v, want ErrIncomplete", in, err)
		}
	}
}

func TestTextParser_EmptyLine(t *testing.T) {
	p := NewTextParser(TextOptions{})

	items, err := p.Parse([]byte("\n"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 1 || items[0].Consumed != 1 || items[0].Record.Message != "" {
		t.Errorf("Parse() = %+v, want one empty message", items)
	}
}

func TestTextParser_IncludeExclude(t *testing.T) {
	p := NewTextParser(TextOptions{
		Include: regexp.MustCompile(`ERROR|WARN`),
		Exclude: regexp.MustCompile(`ignore`),
	})

	items, err := p.Parse([]byte("INFO a\nERROR b\nWARN ignore c\n"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Parse() returned %d items, want 3", len(items))
	}
	if items[0].Record != nil || items[2].Record != nil {
		t.Error("filtered lines should be skipped items")
	}
	if items[1].Record == nil || items[1].Record.Message != "ERROR b" {
		t.Errorf("items[1] = %+v, want ERROR b", items[1].Record)
	}
}

func TestTextParser_Timestamps(t *testing.T) {
	p := NewTextParser(TextOptions{
		Timestamps: NewTimestampExtractor(regexp.MustCompile(`^(\S+)`), "2006-01-02T15:04:05Z07:00", nil),
	})
	hint := uint64(42)

	items, err := p.Parse([]byte("1970-01-01T00:00:02Z started\ngarbage\n"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := items[0].Record
	if got.Kind != RecordColumns || got.Columns[0] != "2000" || got.Columns[1] != "1970-01-01T00:00:02Z started" {
		t.Errorf("items[0] = %+v", got)
	}
	if items[1].Record.Columns[0] != "0" {
		t.Errorf("missing timestamp = %s, want 0", items[1].Record.Columns[0])
	}

	items, err = p.Parse([]byte("garbage\n"), &hint)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if items[0].Record.Columns[0] != "42" {
		t.Errorf("hinted timestamp = %s, want 42", items[0].Record.Columns[0])
	}
}

func TestTextParser_InvalidUTF8Replaced(t *testing.T) {
	p := NewTextParser(TextOptions{})

	items, err := p.Parse([]byte("a\xffb\n"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if items[0].Record.Message != "a�b" {
		t.Errorf("Message = %q, want replacement character", items[0].Record.Message)
	}
}

func TestTextParser_MaxLineLength(t *testing.T) {
	p := NewTextParser(TextOptions{MaxLineLength: 4})

	items, err := p.Parse([]byte("ok\ntoolong\nfine\n"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.Record.Message)
	}
	if strings.Join(got, ",") != "ok,tool,fine" {
		t.Errorf("messages = %q, want ok,tool,fine", got)
	}
	if items[1].Consumed != len("toolong\n") {
		t.Errorf("items[1].Consumed = %d, want the whole long line", items[1].Consumed)
	}
}

func TestTextParser_LongLineAcrossCalls(t *testing.T) {
	p := NewTextParser(TextOptions{MaxLineLength: 4})

	items, err := p.Parse([]byte("abcdefgh"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 1 || items[0].Consumed != 8 || items[0].Record.Message != "abcd" {
		t.Fatalf("Parse() = %+v, want one truncated line consuming 8 bytes", items)
	}

	items, err = p.Parse([]byte("ijk"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 1 || items[0].Consumed != 3 || items[0].Record != nil {
		t.Fatalf("Parse() = %+v, want the continuation skipped", items)
	}

	items, err = p.Parse([]byte("lm\nnext\n"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 2 || items[0].Record != nil || items[0].Consumed != 3 {
		t.Fatalf("Parse() = %+v, want skipped tail then next", items)
	}
	if items[1].Record.Message != "next" {
		t.Errorf("items[1] = %+v, want next", items[1].Record)
	}
}

func TestError_IsByKind(t *testing.T) {
	err := NewParseError("bad byte %#x", 0x00)
	if !errors.Is(err, ErrParse) {
		t.Error("errors.Is(parse error, ErrParse) = false")
	}
	if errors.Is(err, ErrIncomplete) {
		t.Error("errors.Is(parse error, ErrIncomplete) = true")
	}
	if !errors.Is(NewUnrecoverableError("stop"), ErrUnrecoverable) {
		t.Error("errors.Is(unrecoverable, ErrUnrecoverable) = false")
	}
	if got := err.Error(); got != "parser: parse: bad byte 0x0" {
		t.Errorf("Error() = %q", got)
	}
}
