package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// deadliner is implemented by readers whose blocking reads can be
// interrupted (network connections, pipes).
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReaderSource is a ByteSource over an io.Reader. Each Load performs a
// single Read of up to the chunk size.
type ReaderSource struct {
	Buffer

	r         io.Reader
	closer    io.Closer
	chunkSize int

	// eofErr, when set, is returned once the reader is exhausted.
	// Otherwise io.EOF reports "nothing new", which lets a file be read
	// again after it grows.
	eofErr error

	mu       sync.Mutex
	deferred error
}

// ReaderOption configures a ReaderSource.
type ReaderOption func(*ReaderSource)

// WithChunkSize sets the maximum bytes read per Load.
func WithChunkSize(n int) ReaderOption {
	return func(s *ReaderSource) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithEOFError makes an exhausted reader end the stream with err.
func WithEOFError(err error) ReaderOption {
	return func(s *ReaderSource) { s.eofErr = err }
}

// WithCloser sets what Close releases.
func WithCloser(c io.Closer) ReaderOption {
	return func(s *ReaderSource) { s.closer = c }
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader, opts ...ReaderOption) *ReaderSource {
	s := &ReaderSource{r: r, chunkSize: DefaultChunkSize}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenFile opens path for reading.
func OpenFile(path string, opts ...ReaderOption) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return NewReaderSource(f, opts...), nil
}

func (s *ReaderSource) CurrentSlice() []byte { return s.Bytes() }
func (s *ReaderSource) IsEmpty() bool        { return s.Len() == 0 }

// Load reads one chunk. A read error that arrives together with data is
// held back and returned by the following Load.
func (s *ReaderSource) Load(ctx context.Context, filter *Filter) (*ReloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.deferred != nil {
		err := s.deferred
		s.deferred = nil
		return nil, err
	}

	if d, ok := s.r.(deadliner); ok {
		_ = d.SetReadDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetReadDeadline(time.Now())
		})
		defer stop()
	}

	space := s.free(s.chunkSize)[:s.chunkSize]
	n, err := s.r.Read(space)

	info := &ReloadInfo{}
	if n > 0 {
		if filter.keep(space[:n]) {
			s.commit(n)
			info.NewlyLoadedBytes = n
		} else {
			info.SkippedBytes = n
		}
	}
	info.AvailableBytes = s.Len()

	if err != nil {
		err = s.readError(ctx, err)
		if n > 0 {
			s.deferred = err
			return info, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return info, nil
}

func (s *ReaderSource) readError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return s.eofErr
	case errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("reading source: %w", err)
	}
}

// Close releases the underlying reader when it is closable.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}
