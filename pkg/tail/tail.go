// Package tail watches a file for growth and notifies a session driver
// so it can resume reading after reaching the end of the file.
package tail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ccollicutt/logstream/internal/clock"
)

// DefaultInterval is how often the file size is polled.
const DefaultInterval = 500 * time.Millisecond

// ErrTruncated is sent when the file shrinks.
var ErrTruncated = errors.New("file truncated")

// Tracker polls a file's size.
type Tracker struct {
	Path     string
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Run sends nil on out whenever the file has grown, and a single error
// when the file can no longer be followed. out is closed when Run
// returns. Run stops when ctx is cancelled.
//
// One nil is sent up front: a reader that hit the end of the file before
// the first poll re-checks instead of waiting for the next growth.
func (t *Tracker) Run(ctx context.Context, out chan<- error) error {
	defer close(out)

	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := t.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	size, err := fileSize(t.Path)
	if err != nil {
		send(ctx, out, err)
		return nil
	}
	notify(out)

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		current, err := fileSize(t.Path)
		switch {
		case err != nil:
			logger.Warn("tail: file no longer readable", "path", t.Path, "error", err)
			send(ctx, out, err)
			return nil
		case current < size:
			logger.Warn("tail: file truncated", "path", t.Path, "was", size, "now", current)
			send(ctx, out, fmt.Errorf("%s: %w", t.Path, ErrTruncated))
			return nil
		case current > size:
			size = current
			notify(out)
		}
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// notify coalesces growth signals: one pending nil is enough.
func notify(out chan<- error) {
	select {
	case out <- nil:
	default:
	}
}

func send(ctx context.Context, out chan<- error, err error) {
	select {
	case out <- err:
	case <-ctx.Done():
	}
}
