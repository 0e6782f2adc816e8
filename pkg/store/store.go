// Package store defines where a session's output is persisted.
package store

import (
	"context"
	"errors"

	"github.com/ccollicutt/logstream/pkg/parser"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// SourceDesc identifies a source registered with a store.
type SourceDesc struct {
	Name string
	// Kind is the configured source type (file, tcp, ...).
	Kind string
	// Location is the path, address or command the source reads from.
	Location string
}

// Store persists session text and attachments.
//
// Write receives newline-terminated text produced by one flush of a
// source's buffer. Implementations must be safe for concurrent use by
// multiple sources.
type Store interface {
	AddSource(ctx context.Context, desc SourceDesc) (uint16, error)
	Write(ctx context.Context, sourceID uint16, text []byte) error
	AddAttachment(ctx context.Context, sourceID uint16, att *parser.Attachment) error
	Flush(ctx context.Context) error
	Close() error
}
