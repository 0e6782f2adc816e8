// Package parser defines the parser contract used by the message producer,
// the records it yields, and the text and CBOR frame parsers.
package parser

import "time"

// ColumnSentinel separates columns of a Columns record in the session
// text stream.
const ColumnSentinel = '\u0004'

// RecordKind identifies which field of a Record is populated.
type RecordKind uint8

const (
	RecordRaw RecordKind = iota + 1
	RecordMessage
	RecordColumns
	RecordMultiple
	RecordAttachment
)

// Record is a tagged union of everything a parser can yield.
type Record struct {
	Kind RecordKind

	Raw        []byte
	Message    string
	Columns    []string
	Multiple   []Record
	Attachment *Attachment
}

// Attachment is a binary payload carried alongside the text stream.
type Attachment struct {
	// Name is the original file name, if known.
	Name string

	// Size is the payload length in bytes.
	Size uint64

	// MIME is the media type, if known.
	MIME string

	Created  time.Time
	Modified time.Time

	// Messages lists positions of log messages this attachment refers to.
	Messages []uint64

	Data []byte
}

// Raw returns a record holding undecoded bytes.
func Raw(b []byte) Record { return Record{Kind: RecordRaw, Raw: b} }

// Message returns a single text message record.
func Message(s string) Record { return Record{Kind: RecordMessage, Message: s} }

// Columns returns a columnar record.
func Columns(cols ...string) Record { return Record{Kind: RecordColumns, Columns: cols} }

// Multiple groups records that must be appended in order.
func Multiple(recs ...Record) Record { return Record{Kind: RecordMultiple, Multiple: recs} }

// AttachmentRecord wraps an attachment.
func AttachmentRecord(a *Attachment) Record { return Record{Kind: RecordAttachment, Attachment: a} }

// MessageAndAttachment yields a message followed by its attachment.
func MessageAndAttachment(msg Record, a *Attachment) Record {
	return Multiple(msg, AttachmentRecord(a))
}
