package parser

import "fmt"

// Kind classifies a parser failure.
type Kind int

const (
	// KindIncomplete means the input ends mid-item.
	KindIncomplete Kind = iota + 1
	// KindParse means the bytes at the front of the input are malformed.
	KindParse
	// KindEOF means the parser recognised an end-of-stream marker.
	KindEOF
	// KindUnrecoverable means parsing cannot continue.
	KindUnrecoverable
)

func (k Kind) String() string {
	switch k {
	case KindIncomplete:
		return "incomplete"
	case KindParse:
		return "parse"
	case KindEOF:
		return "eof"
	case KindUnrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified parser error.
type Error struct {
	Kind Kind
	Msg  string
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrIncomplete    = &Error{Kind: KindIncomplete}
	ErrParse         = &Error{Kind: KindParse}
	ErrEOF           = &Error{Kind: KindEOF}
	ErrUnrecoverable = &Error{Kind: KindUnrecoverable}
)

// NewParseError returns a Parse error carrying msg.
func NewParseError(format string, args ...any) *Error {
	return &Error{Kind: KindParse, Msg: fmt.Sprintf(format, args...)}
}

// NewUnrecoverableError returns an Unrecoverable error carrying msg.
func NewUnrecoverableError(format string, args ...any) *Error {
	return &Error{Kind: KindUnrecoverable, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "parser: " + e.Kind.String()
	}
	return fmt.Sprintf("parser: %s: %s", e.Kind, e.Msg)
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
