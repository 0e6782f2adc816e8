package tail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/logstream/internal/clock"
)

func receive(t *testing.T, ch <-chan error) (error, bool) {
	t.Helper()
	select {
	case err, ok := <-ch:
		return err, ok
	case <-time.After(5 * time.Second):
		t.Fatal("no tail notification")
		return nil, false
	}
}

// track runs a Tracker on path in its own goroutine.
func track(ctx context.Context, path string, clk clock.Clock, interval time.Duration) <-chan error {
	out := make(chan error, 1)
	t := &Tracker{Path: path, Interval: interval, Clock: clk}
	go func() { _ = t.Run(ctx, out) }()
	return out
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTracker_Growth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0644))

	clk := clock.Fake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := track(ctx, path, clk, time.Second)

	err, ok := receive(t, ch)
	require.True(t, ok)
	assert.NoError(t, err, "initial notification")

	clk.WaitForTimers(1)
	appendTo(t, path, "b\n")
	clk.Advance(time.Second)

	err, ok = receive(t, ch)
	require.True(t, ok)
	assert.NoError(t, err)
}

func TestTracker_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("some content\n"), 0644))

	clk := clock.Fake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := track(ctx, path, clk, time.Second)
	_, _ = receive(t, ch)

	clk.WaitForTimers(1)
	require.NoError(t, os.Truncate(path, 0))
	clk.Advance(time.Second)

	err, ok := receive(t, ch)
	require.True(t, ok)
	assert.True(t, errors.Is(err, ErrTruncated), "got %v", err)

	_, ok = receive(t, ch)
	assert.False(t, ok, "channel closes after an error")
}

func TestTracker_Removed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))

	clk := clock.Fake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := track(ctx, path, clk, time.Second)
	_, _ = receive(t, ch)

	clk.WaitForTimers(1)
	require.NoError(t, os.Remove(path))
	clk.Advance(time.Second)

	err, ok := receive(t, ch)
	require.True(t, ok)
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestTracker_MissingFile(t *testing.T) {
	ch := track(context.Background(), filepath.Join(t.TempDir(), "nope.log"), clock.Fake(time.Unix(0, 0)), time.Second)

	err, ok := receive(t, ch)
	require.True(t, ok)
	assert.Error(t, err)
}

func TestTracker_CancelClosesChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	ctx, cancel := context.WithCancel(context.Background())
	ch := track(ctx, path, clock.Fake(time.Unix(0, 0)), time.Second)
	_, _ = receive(t, ch)

	cancel()
	_, ok := receive(t, ch)
	assert.False(t, ok)
}
