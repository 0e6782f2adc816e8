package source

import (
	"context"
	"fmt"
)

// Buffer is a growable byte buffer with amortised consumption. Consumed
// bytes are reclaimed lazily by compacting on the next write.
type Buffer struct {
	data []byte
	off  int
}

// Bytes returns the unconsumed bytes.
func (b *Buffer) Bytes() []byte { return b.data[b.off:] }

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int { return len(b.data) - b.off }

// Consume drops the first n unconsumed bytes.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic(fmt.Sprintf("source: consume %d of %d buffered bytes", n, b.Len()))
	}
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// Write appends p.
func (b *Buffer) Write(p []byte) {
	copy(b.free(len(p)), p)
	b.commit(len(p))
}

// free returns at least n writable bytes past the end of the buffer.
func (b *Buffer) free(n int) []byte {
	if b.off > 0 && b.off >= cap(b.data)/2 {
		live := copy(b.data, b.data[b.off:])
		b.data = b.data[:live]
		b.off = 0
	}
	if cap(b.data)-len(b.data) < n {
		grown := make([]byte, len(b.data), 2*cap(b.data)+n)
		copy(grown, b.data)
		b.data = grown
	}
	return b.data[len(b.data):cap(b.data)]
}

func (b *Buffer) commit(n int) {
	b.data = b.data[:len(b.data)+n]
}

// BufferSource is a ByteSource over a Buffer that is fed by Push instead
// of I/O. Load reports what was pushed since the previous Load.
type BufferSource struct {
	Buffer

	pending int
	skipped int
	ts      *uint64
}

// NewBufferSource returns a BufferSource holding initial.
func NewBufferSource(initial []byte) *BufferSource {
	s := &BufferSource{}
	s.Push(initial)
	return s
}

// Push appends p to be reported by the next Load.
func (s *BufferSource) Push(p []byte) {
	s.Write(p)
	s.pending += len(p)
}

// SetTimestamp sets the timestamp reported by the next Load.
func (s *BufferSource) SetTimestamp(ms uint64) { s.ts = &ms }

func (s *BufferSource) CurrentSlice() []byte { return s.Bytes() }
func (s *BufferSource) IsEmpty() bool        { return s.Len() == 0 }

// Load reports pushed bytes. Filters are not applied to pushed data.
func (s *BufferSource) Load(ctx context.Context, _ *Filter) (*ReloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending == 0 && s.ts == nil {
		return nil, nil
	}
	info := &ReloadInfo{
		NewlyLoadedBytes: s.pending,
		AvailableBytes:   s.Len(),
		SkippedBytes:     s.skipped,
		LastKnownTS:      s.ts,
	}
	s.pending, s.skipped, s.ts = 0, 0, nil
	return info, nil
}
