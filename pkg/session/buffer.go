package session

import (
	"context"
	"fmt"

	"github.com/ccollicutt/logstream/pkg/parser"
)

// SinkTarget receives flushed session text and attachments.
type SinkTarget interface {
	WriteSessionFile(ctx context.Context, sourceID uint16, text []byte) error
	AddAttachment(ctx context.Context, sourceID uint16, att *parser.Attachment) error
}

// LogsBuffer accumulates the text rendering of parsed records for one
// source and queues attachments until the next Flush.
//
// Attachments are only handed to the target after the text that was
// appended before them, so a consumer never sees an attachment whose
// message has not been written yet.
type LogsBuffer struct {
	target   SinkTarget
	sourceID uint16

	text        []byte
	spare       []byte
	attachments []*parser.Attachment
}

// NewLogsBuffer creates a buffer writing to target as sourceID.
func NewLogsBuffer(target SinkTarget, sourceID uint16) *LogsBuffer {
	return &LogsBuffer{target: target, sourceID: sourceID}
}

// SourceID returns the id text is written under.
func (b *LogsBuffer) SourceID() uint16 { return b.sourceID }

// Append renders rec into the text buffer, or queues it if it is an
// attachment.
func (b *LogsBuffer) Append(rec parser.Record) {
	switch rec.Kind {
	case parser.RecordRaw:
		b.text = fmt.Appendf(b.text, "%X", rec.Raw)
		b.text = append(b.text, '\n')
	case parser.RecordMessage:
		b.text = append(b.text, rec.Message...)
		b.text = append(b.text, '\n')
	case parser.RecordColumns:
		for i, col := range rec.Columns {
			if i > 0 {
				b.text = append(b.text, string(parser.ColumnSentinel)...)
			}
			b.text = append(b.text, col...)
		}
		b.text = append(b.text, '\n')
	case parser.RecordMultiple:
		for _, inner := range rec.Multiple {
			b.Append(inner)
		}
	case parser.RecordAttachment:
		if rec.Attachment != nil {
			b.attachments = append(b.attachments, rec.Attachment)
		}
	}
}

// Pending reports buffered text bytes and queued attachments.
func (b *LogsBuffer) Pending() (textBytes, attachments int) {
	return len(b.text), len(b.attachments)
}

// Flush writes buffered text, if any, then the queued attachments in
// order. The text buffer is cleared even when the write fails; queued
// attachments stay queued until they are delivered.
func (b *LogsBuffer) Flush(ctx context.Context) error {
	if len(b.text) > 0 {
		out := b.text
		b.text, b.spare = b.spare[:0], nil
		err := b.target.WriteSessionFile(ctx, b.sourceID, out)
		b.spare = out[:0]
		if err != nil {
			return fmt.Errorf("writing session text: %w", err)
		}
	}

	for len(b.attachments) > 0 {
		att := b.attachments[0]
		if err := b.target.AddAttachment(ctx, b.sourceID, att); err != nil {
			return fmt.Errorf("adding attachment %q: %w", att.Name, err)
		}
		b.attachments[0] = nil
		b.attachments = b.attachments[1:]
	}
	b.attachments = nil
	return nil
}
