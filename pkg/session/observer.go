package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ccollicutt/logstream/internal/clock"
	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/producer"
	"github.com/ccollicutt/logstream/pkg/source"
	"github.com/ccollicutt/logstream/pkg/store"
	"github.com/ccollicutt/logstream/pkg/tail"
)

// SourceSpec describes one source of an observe session.
type SourceSpec struct {
	Desc store.SourceDesc

	// Open creates the byte source. It is called when the source's turn
	// comes, so sequential sessions open files one at a time.
	Open func(ctx context.Context) (source.ByteSource, error)

	Parser parser.Parser
	Filter *source.Filter

	// TailPath, when set, is watched for growth once the source has been
	// read to the end.
	TailPath string
}

// ObserverOptions configures an Observer.
type ObserverOptions struct {
	// Sequential reads sources one after another in the given order
	// instead of concurrently.
	Sequential bool

	FlushInterval          time.Duration
	TailInterval           time.Duration
	InitialParseErrorLimit int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Observer runs a producer per source against a shared State.
type Observer struct {
	state *State
	specs []SourceSpec
	opts  ObserverOptions
	sde   map[string]chan SDEMsg
}

// NewObserver creates an Observer. Source names must be unique.
func NewObserver(state *State, specs []SourceSpec, opts ObserverOptions) *Observer {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	o := &Observer{
		state: state,
		specs: specs,
		opts:  opts,
		sde:   make(map[string]chan SDEMsg, len(specs)),
	}
	for _, spec := range specs {
		o.sde[spec.Desc.Name] = make(chan SDEMsg)
	}
	return o
}

// SDE returns the request channel of the named source, or nil.
func (o *Observer) SDE(name string) chan<- SDEMsg {
	ch, ok := o.sde[name]
	if !ok {
		return nil
	}
	return ch
}

// Run registers every source and reads them until they end. It returns
// the first sink error; source failures are reported in the State
// summary.
func (o *Observer) Run(ctx context.Context) error {
	ids := make([]uint16, len(o.specs))
	for i, spec := range o.specs {
		id, err := o.state.AddSource(ctx, spec.Desc)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	if o.opts.Sequential {
		for i := range o.specs {
			if ctx.Err() != nil {
				o.state.markEnded(ids[i], EndCancelled, "")
				continue
			}
			if err := o.runSource(ctx, o.specs[i], ids[i]); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range o.specs {
		g.Go(func() error {
			return o.runSource(gctx, o.specs[i], ids[i])
		})
	}
	return g.Wait()
}

func (o *Observer) runSource(ctx context.Context, spec SourceSpec, id uint16) error {
	logger := o.opts.Logger.With("source", spec.Desc.Name)

	src, err := spec.Open(ctx)
	if err != nil {
		logger.Error("opening source", "error", err)
		o.state.markEnded(id, EndSourceError, err.Error())
		return nil
	}
	if c, ok := src.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("closing source", "error", err)
			}
		}()
	}

	p := producer.New(spec.Parser, src,
		producer.WithFilter(spec.Filter),
		producer.WithInitialParseErrorLimit(o.opts.InitialParseErrorLimit),
		producer.WithLogger(logger),
	)
	buf := NewLogsBuffer(o.state, id)
	runOpts := RunOptions{
		SDE:           o.sde[spec.Desc.Name],
		FlushInterval: o.opts.FlushInterval,
		Clock:         o.opts.Clock,
		Logger:        o.opts.Logger,
		Metrics:       o.opts.Metrics,
	}

	if spec.TailPath == "" {
		if err := RunProducer(ctx, o.state, p, buf, runOpts); err != nil {
			return fmt.Errorf("source %s: %w", spec.Desc.Name, err)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	tailCtx, stopTail := context.WithCancel(gctx)
	tailCh := make(chan error, 1)
	runOpts.Tail = tailCh

	tracker := &tail.Tracker{
		Path:     spec.TailPath,
		Interval: o.opts.TailInterval,
		Clock:    o.opts.Clock,
		Logger:   logger,
	}
	g.Go(func() error { return tracker.Run(tailCtx, tailCh) })
	g.Go(func() error {
		defer stopTail()
		if err := RunProducer(gctx, o.state, p, buf, runOpts); err != nil {
			return fmt.Errorf("source %s: %w", spec.Desc.Name, err)
		}
		return nil
	})
	return g.Wait()
}
