package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrStreamClosed is returned once a stream source's peer has closed.
var ErrStreamClosed = errors.New("stream closed by peer")

// DialTCP connects to addr and returns a source reading from the
// connection. The connection is closed by Close.
func DialTCP(ctx context.Context, addr string, opts ...ReaderOption) (*ReaderSource, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	opts = append([]ReaderOption{WithEOFError(ErrStreamClosed)}, opts...)
	return NewReaderSource(conn, opts...), nil
}

// UDPSource receives datagrams on a bound address and buffers their
// payloads back to back.
type UDPSource struct {
	Buffer

	conn    net.PacketConn
	scratch []byte
}

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// ListenUDP binds addr.
func ListenUDP(addr string) (*UDPSource, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &UDPSource{conn: conn, scratch: make([]byte, maxDatagram)}, nil
}

// LocalAddr returns the bound address.
func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *UDPSource) CurrentSlice() []byte { return s.Bytes() }
func (s *UDPSource) IsEmpty() bool        { return s.Len() == 0 }

// Load waits for one datagram. Datagrams from peers outside the allow
// list, or rejected by the filter, count as skipped bytes.
func (s *UDPSource) Load(ctx context.Context, filter *Filter) (*ReloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_ = s.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, from, err := s.conn.ReadFrom(s.scratch)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("receiving datagram: %w", err)
	}

	info := &ReloadInfo{}
	payload := s.scratch[:n]
	if filter.allowRemote(from) && filter.keep(payload) {
		s.Write(payload)
		info.NewlyLoadedBytes = n
	} else {
		info.SkippedBytes = n
	}
	info.AvailableBytes = s.Len()
	return info, nil
}

// Close releases the socket.
func (s *UDPSource) Close() error { return s.conn.Close() }
