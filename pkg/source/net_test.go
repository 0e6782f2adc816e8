package source

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialTCP_ReadsStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("line one\n"))
		_ = conn.Close()
	}()

	ctx := context.Background()
	src, err := DialTCP(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer src.Close()

	var got []byte
	for {
		info, err := src.Load(ctx, nil)
		if err != nil {
			assert.ErrorIs(t, err, ErrStreamClosed)
			break
		}
		if info != nil {
			got = src.CurrentSlice()
		}
	}
	assert.Equal(t, "line one\n", string(got))
}

func TestDialTCP_CancelUnblocksLoad(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	src, err := DialTCP(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer src.Close()
	peer := <-accepted
	defer peer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := src.Load(ctx, nil)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Load did not return after cancellation")
	}
}

func TestUDPSource_AllowList(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer src.Close()

	sender, err := net.Dial("udp", src.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = sender.Write([]byte("accepted"))
	require.NoError(t, err)
	info, err := src.Load(ctx, &Filter{AllowRemotes: []net.IP{net.ParseIP("127.0.0.1")}})
	require.NoError(t, err)
	assert.Equal(t, 8, info.NewlyLoadedBytes)

	_, err = sender.Write([]byte("rejected"))
	require.NoError(t, err)
	info, err = src.Load(ctx, &Filter{AllowRemotes: []net.IP{net.ParseIP("10.0.0.1")}})
	require.NoError(t, err)
	assert.Equal(t, 0, info.NewlyLoadedBytes)
	assert.Equal(t, 8, info.SkippedBytes)
	assert.Equal(t, "accepted", string(src.CurrentSlice()))
}

func TestUDPSource_CancelUnblocksLoad(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = src.Load(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
