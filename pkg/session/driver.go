package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ccollicutt/logstream/internal/clock"
	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/producer"
	"github.com/ccollicutt/logstream/pkg/source"
)

// DefaultFlushInterval is how long the driver waits for data before
// flushing the session.
const DefaultFlushInterval = 500 * time.Millisecond

// SDEResult answers an SDEMsg.
type SDEResult struct {
	Response source.SDEResponse
	Err      error
}

// SDEMsg is a request to send data into a running source. Reply should
// be buffered; the driver never blocks on it.
type SDEMsg struct {
	Request source.SDERequest
	Reply   chan<- SDEResult
}

// RunOptions configures RunProducer. All fields are optional.
type RunOptions struct {
	// Tail delivers nil when the source has more data after the driver
	// reached its end. An error or a closed channel ends the session.
	// Without Tail the session ends at the end of the data.
	Tail <-chan error

	// SDE carries requests for the source.
	SDE <-chan SDEMsg

	FlushInterval time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
	Metrics       *Metrics
}

// ending describes why the loop stopped.
type ending struct {
	reason EndReason
	detail string
	err    error
}

type fetchResult struct {
	info producer.FetchInfo
	err  error
}

type driver struct {
	state    *State
	producer *producer.MessageProducer
	buf      *LogsBuffer
	tail     <-chan error
	sde      <-chan SDEMsg
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
	name     string
	interval time.Duration

	fetchCtx    context.Context
	stats       producer.Stats
	parseErrors uint64
	lastLoaded  int
}

// RunProducer drives p until its source is exhausted, a terminal parser
// or source error occurs, or ctx is cancelled.
//
// Each iteration waits for the first of: the outstanding fetch, the
// flush interval, an SDE request, or cancellation. A fetch that is still
// running when another event wins is kept and its result consumed on a
// later iteration, so no loaded bytes are lost.
//
// Source and parser errors end the session and are recorded in the
// State summary; only sink (store) errors are returned. On every exit
// path the buffer is flushed, then the session is flushed, then the
// source is marked read.
func RunProducer(ctx context.Context, state *State, p *producer.MessageProducer, buf *LogsBuffer, opts RunOptions) error {
	d := &driver{
		state:    state,
		producer: p,
		buf:      buf,
		tail:     opts.Tail,
		sde:      opts.SDE,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		interval: opts.FlushInterval,
	}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	if d.interval <= 0 {
		d.interval = DefaultFlushInterval
	}
	d.name = state.sourceName(buf.SourceID())
	d.logger = d.logger.With("source", d.name)

	if err := state.SetSessionFile(ctx, ""); err != nil {
		return err
	}
	started := d.clock.Now()
	state.update(buf.SourceID(), func(st *SourceStats) { st.Started = started })

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()
	d.fetchCtx = fetchCtx

	end := d.loop(ctx)
	cancelFetch()
	reason, detail, runErr := end.reason, end.detail, end.err

	finalCtx := context.WithoutCancel(ctx)
	if err := d.flushBuffer(finalCtx); err != nil && runErr == nil {
		runErr, reason, detail = err, EndSinkError, err.Error()
	}
	if err := state.FlushSessionFile(finalCtx); err != nil && runErr == nil {
		runErr, reason, detail = err, EndSinkError, err.Error()
	}
	if err := state.FileRead(finalCtx, buf.SourceID()); err != nil && runErr == nil {
		runErr, reason, detail = err, EndSinkError, err.Error()
	}

	finished := d.clock.Now()
	state.update(buf.SourceID(), func(st *SourceStats) {
		st.LoadedBytes = d.stats.LoadedBytes
		st.DroppedBytes = d.stats.DroppedBytes
		st.ParsedMsgs = d.stats.ParsedMsgs
		st.SkippedMsgs = d.stats.SkippedMsgs
		st.ParseErrors = d.parseErrors
		st.EndReason = reason
		st.EndDetail = detail
		st.Finished = finished
	})
	d.metrics.ended(d.name, reason)
	d.logger.Info("message stream done",
		"reason", reason,
		"elapsed", finished.Sub(started),
		"parsed", d.stats.ParsedMsgs,
	)
	return runErr
}

func (d *driver) loop(ctx context.Context) ending {
	var pending <-chan fetchResult

	for {
		if ctx.Err() != nil {
			return ending{reason: EndCancelled}
		}
		if pending == nil {
			pending = d.startFetch()
		}
		timeout := d.clock.After(d.interval)

		select {
		case <-ctx.Done():
			return ending{reason: EndCancelled}

		case res := <-pending:
			pending = nil
			d.stats = d.producer.Stats()
			if res.err != nil {
				if ctx.Err() != nil {
					return ending{reason: EndCancelled}
				}
				d.logger.Error("ending session due to source error", "error", res.err)
				return ending{reason: EndSourceError, detail: res.err.Error()}
			}
			d.metrics.fetched(d.name, res.info)
			d.lastLoaded = res.info.NewlyLoadedBytes

			if res.info.AvailableBytes == 0 {
				if end := d.idle(ctx); end != nil {
					return *end
				}
				continue
			}

			end, stalled := d.process(ctx)
			if end != nil {
				return *end
			}
			if stalled {
				if end := d.idle(ctx); end != nil {
					return *end
				}
			}

		case <-timeout:
			if !d.state.IsClosing() {
				if err := d.state.FlushSessionFile(ctx); err != nil {
					return sinkFailure(err)
				}
			}

		case msg, ok := <-d.sde:
			if !ok {
				d.sde = nil
				continue
			}
			d.income(ctx, msg)
		}
	}
}

func (d *driver) startFetch() <-chan fetchResult {
	ch := make(chan fetchResult, 1)
	go func() {
		info, err := d.producer.FetchData(d.fetchCtx)
		ch <- fetchResult{info: info, err: err}
	}()
	return ch
}

// idle flushes the session and waits for the source to grow. It is used
// when the source has nothing new to offer.
func (d *driver) idle(ctx context.Context) *ending {
	if !d.state.IsClosing() {
		if err := d.state.FlushSessionFile(ctx); err != nil {
			end := sinkFailure(err)
			return &end
		}
	}
	return d.waitTail(ctx)
}

// waitTail blocks until the source may have more data. A non-nil result
// ends the session.
func (d *driver) waitTail(ctx context.Context) *ending {
	if d.tail == nil {
		return &ending{reason: EndDrained}
	}
	d.logger.Debug("message stream entered tailing")

	for {
		select {
		case err, ok := <-d.tail:
			if !ok {
				return &ending{reason: EndTailClosed}
			}
			if err != nil {
				d.logger.Warn("tail stopped", "error", err)
				return &ending{reason: EndTailError, detail: err.Error()}
			}
			return nil
		case <-ctx.Done():
			return &ending{reason: EndCancelled}
		case msg, ok := <-d.sde:
			if !ok {
				d.sde = nil
				continue
			}
			d.income(ctx, msg)
		}
	}
}

// process runs one parse pass. A non-nil ending stops the session.
// stalled reports a partial unit that the last fetch did not extend.
func (d *driver) process(ctx context.Context) (end *ending, stalled bool) {
	before := d.stats.DroppedBytes
	infos, err := d.producer.ProcessData(d.buf)
	d.stats = d.producer.Stats()
	d.metrics.dropped(d.name, d.stats.DroppedBytes-before)

	switch {
	case err == nil && infos != nil:
		d.metrics.processed(d.name, infos)
		if infos.ParsedMsgs > 0 {
			if err := d.flushBuffer(ctx); err != nil {
				failed := sinkFailure(err)
				return &failed, false
			}
		}
	case err == nil:
		// Buffer drained; fetch more.
	case errors.Is(err, parser.ErrParse):
		d.parseErrors++
		d.metrics.parseError(d.name)
		d.logger.Warn("parse error", "error", err)
	case errors.Is(err, parser.ErrIncomplete):
		return nil, d.lastLoaded == 0
	case errors.Is(err, parser.ErrEOF):
		d.logger.Info("parser reached end of stream")
		return &ending{reason: EndEOF}, false
	default:
		d.logger.Error("ending session due to unrecoverable error", "error", err)
		return &ending{reason: EndUnrecoverable, detail: err.Error()}, false
	}
	return nil, false
}

func sinkFailure(err error) ending {
	return ending{reason: EndSinkError, detail: err.Error(), err: err}
}

func (d *driver) flushBuffer(ctx context.Context) error {
	if text, atts := d.buf.Pending(); text == 0 && atts == 0 {
		return nil
	}
	if err := d.buf.Flush(ctx); err != nil {
		return err
	}
	d.metrics.flushed(d.name)
	return nil
}

func (d *driver) income(ctx context.Context, msg SDEMsg) {
	resp, err := d.producer.SDEIncome(ctx, msg.Request)
	if msg.Reply == nil {
		return
	}
	select {
	case msg.Reply <- SDEResult{Response: resp, Err: err}:
	default:
		d.logger.Warn("dropping SDE reply: receiver not ready")
	}
}
