// Package source provides the byte sources a message producer reads
// from: an internal buffer plus the I/O needed to refill it.
package source

import (
	"context"
	"errors"
	"net"
)

// DefaultChunkSize is the read size used by stream sources.
const DefaultChunkSize = 64 * 1024

// ErrSDENotSupported is returned when a source cannot accept SDE requests.
var ErrSDENotSupported = errors.New("source does not support SDE")

// ByteSource buffers bytes loaded from some input.
//
// CurrentSlice is only valid until the next call to Load or Consume.
type ByteSource interface {
	// CurrentSlice returns the unconsumed bytes.
	CurrentSlice() []byte

	// Consume drops the first n bytes. It panics if n > Len().
	Consume(n int)

	IsEmpty() bool
	Len() int

	// Load reads more data and appends it to the buffer. A nil
	// *ReloadInfo with a nil error means nothing new was available.
	// Bytes read before an error or cancellation are always kept.
	Load(ctx context.Context, filter *Filter) (*ReloadInfo, error)
}

// SDESource is implemented by sources that accept data sent back to the
// producing side. Income may run while a Load is in flight.
type SDESource interface {
	Income(ctx context.Context, req SDERequest) (SDEResponse, error)
}

// ReloadInfo reports the outcome of one Load.
type ReloadInfo struct {
	NewlyLoadedBytes int
	AvailableBytes   int
	SkippedBytes     int

	// LastKnownTS is the most recent timestamp the source observed, in
	// milliseconds since the epoch, when it has one.
	LastKnownTS *uint64
}

// Filter narrows what a source accepts. A nil *Filter accepts everything.
type Filter struct {
	// Keep reports whether a loaded chunk should be buffered. Rejected
	// chunks are counted as skipped bytes.
	Keep func(chunk []byte) bool

	// AllowRemotes restricts datagram sources to these peers.
	AllowRemotes []net.IP
}

func (f *Filter) keep(chunk []byte) bool {
	return f == nil || f.Keep == nil || f.Keep(chunk)
}

func (f *Filter) allowRemote(addr net.Addr) bool {
	if f == nil || len(f.AllowRemotes) == 0 {
		return true
	}
	var ip net.IP
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip = a.IP
	case *net.TCPAddr:
		ip = a.IP
	default:
		return false
	}
	for _, allowed := range f.AllowRemotes {
		if allowed.Equal(ip) {
			return true
		}
	}
	return false
}

// SDEKind selects how an SDE payload is delivered.
type SDEKind int

const (
	SDEWriteText SDEKind = iota + 1
	SDEWriteBytes
)

// SDERequest is data sent into a running source.
type SDERequest struct {
	Kind    SDEKind
	Payload []byte
}

// SDEResponse reports how many bytes the source accepted.
type SDEResponse struct {
	Bytes int
}
