package parser

import (
	"errors"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Frame is one CBOR-encoded record of a framed stream. A frame with no
// fields set is skipped; a frame with EOF set ends the stream.
type Frame struct {
	TS   uint64           `cbor:"ts,omitempty"`
	Msg  string           `cbor:"msg,omitempty"`
	Cols []string         `cbor:"cols,omitempty"`
	Att  *FrameAttachment `cbor:"att,omitempty"`
	EOF  bool             `cbor:"eof,omitempty"`
}

// FrameAttachment is the wire form of an Attachment. Times are Unix
// milliseconds.
type FrameAttachment struct {
	Name     string   `cbor:"name,omitempty"`
	MIME     string   `cbor:"mime,omitempty"`
	Created  int64    `cbor:"created,omitempty"`
	Modified int64    `cbor:"modified,omitempty"`
	Messages []uint64 `cbor:"messages,omitempty"`
	Data     []byte   `cbor:"data"`
}

// DefaultMaxAttachmentSize caps the payload of a framed attachment.
const DefaultMaxAttachmentSize = 64 * 1024 * 1024

// maxFrameOverhead is the room left for the non-attachment fields of a
// frame when deciding that a truncated frame can never complete.
const maxFrameOverhead = 64 * 1024

var (
	frameEncMode cbor.EncMode
	frameDecMode cbor.DecMode
)

func init() {
	var err error

	frameEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("parser: CBOR encoder initialization failed: " + err.Error())
	}

	frameDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("parser: CBOR decoder initialization failed: " + err.Error())
	}
}

// AppendFrame encodes f and appends it to dst.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	b, err := frameEncMode.Marshal(f)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

// FrameParser decodes a stream of concatenated CBOR frames.
type FrameParser struct {
	maxAttachment int
}

// NewFrameParser creates a FrameParser.
func NewFrameParser() *FrameParser {
	return &FrameParser{maxAttachment: DefaultMaxAttachmentSize}
}

// Parse decodes every complete frame at the front of data. Errors are
// only reported when they occur on the first frame; otherwise the items
// decoded so far are returned and the next call sees the error.
func (p *FrameParser) Parse(data []byte, _ *uint64) ([]Item, error) {
	var items []Item
	rest := data

	for len(rest) > 0 {
		var f Frame
		remaining, err := frameDecMode.UnmarshalFirst(rest, &f)
		if err != nil {
			if len(items) > 0 {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				if len(rest) > p.maxAttachment+maxFrameOverhead {
					return nil, NewParseError("truncated frame exceeds %d bytes", p.maxAttachment+maxFrameOverhead)
				}
				return nil, ErrIncomplete
			}
			return nil, NewParseError("decoding frame: %v", err)
		}
		if f.EOF {
			if len(items) > 0 {
				break
			}
			return nil, ErrEOF
		}

		rec, err := p.record(&f)
		if err != nil {
			if len(items) > 0 {
				break
			}
			return nil, err
		}
		items = append(items, Item{
			Consumed: len(rest) - len(remaining),
			Record:   rec,
		})
		rest = remaining
	}

	if len(items) == 0 {
		return nil, ErrIncomplete
	}
	return items, nil
}

func (p *FrameParser) record(f *Frame) (*Record, error) {
	var msg *Record
	switch {
	case len(f.Cols) > 0:
		cols := f.Cols
		if f.TS != 0 {
			cols = append([]string{strconv.FormatUint(f.TS, 10)}, cols...)
		}
		r := Columns(cols...)
		msg = &r
	case f.Msg != "":
		var r Record
		if f.TS != 0 {
			r = Columns(strconv.FormatUint(f.TS, 10), f.Msg)
		} else {
			r = Message(f.Msg)
		}
		msg = &r
	}

	if f.Att == nil {
		return msg, nil
	}
	if len(f.Att.Data) > p.maxAttachment {
		return nil, NewParseError("attachment %q is %d bytes, limit is %d", f.Att.Name, len(f.Att.Data), p.maxAttachment)
	}

	att := &Attachment{
		Name:     f.Att.Name,
		Size:     uint64(len(f.Att.Data)),
		MIME:     f.Att.MIME,
		Messages: f.Att.Messages,
		Data:     f.Att.Data,
	}
	if f.Att.Created != 0 {
		att.Created = time.UnixMilli(f.Att.Created).UTC()
	}
	if f.Att.Modified != 0 {
		att.Modified = time.UnixMilli(f.Att.Modified).UTC()
	}

	var r Record
	if msg != nil {
		r = MessageAndAttachment(*msg, att)
	} else {
		r = AttachmentRecord(att)
	}
	return &r, nil
}
