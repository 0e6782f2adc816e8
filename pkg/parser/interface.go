package parser

// Parser turns a byte slice into zero or more items.
//
// Implementations must not retain data after Parse returns. The sum of
// Consumed over the returned items never exceeds len(data), and a call
// that returns an error consumes nothing.
type Parser interface {
	// Parse parses as many items as it can from the front of data.
	// tsHint, when non-nil, is the last timestamp the source reported
	// (milliseconds since the epoch).
	//
	// Errors are *Error values classified by Kind. ErrIncomplete means
	// data ends mid-item and more bytes are needed.
	Parse(data []byte, tsHint *uint64) ([]Item, error)
}

// Item is one parse result. A nil Record marks an item the parser
// consumed on purpose without producing output (a filtered line).
type Item struct {
	// Consumed is the number of bytes this item covers.
	Consumed int

	// Record is the produced record, or nil for a skipped item.
	Record *Record
}
