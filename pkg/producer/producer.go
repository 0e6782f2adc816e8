// Package producer drives a parser over a byte source: it loads bytes,
// parses as much as it can, and resynchronises after malformed input.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/source"
)

const (
	// DefaultInitialParseErrorLimit is how many bytes may be dropped
	// before any item has been produced; past it the input is treated as
	// not matching the parser at all.
	DefaultInitialParseErrorLimit = 1024

	// dropStep is how many bytes are discarded to resynchronise.
	dropStep = 1
)

// RecordsBuffer receives parsed records.
type RecordsBuffer interface {
	Append(rec parser.Record)
}

// FetchInfo describes one load from the source.
type FetchInfo struct {
	NewlyLoadedBytes int
	AvailableBytes   int
	SkippedBytes     int
}

// ParseOperationInfos describes one successful ProcessData call.
type ParseOperationInfos struct {
	Consumed    int
	ParsedMsgs  int
	SkippedMsgs int
}

// Stats are cumulative counters over the producer's lifetime.
type Stats struct {
	LoadedBytes   uint64
	SkippedBytes  uint64
	ConsumedBytes uint64
	DroppedBytes  uint64
	ParsedMsgs    uint64
	SkippedMsgs   uint64
}

// Option configures a MessageProducer.
type Option func(*MessageProducer)

// WithFilter passes filter to every source Load.
func WithFilter(f *source.Filter) Option {
	return func(p *MessageProducer) { p.filter = f }
}

// WithInitialParseErrorLimit overrides DefaultInitialParseErrorLimit.
func WithInitialParseErrorLimit(n int) Option {
	return func(p *MessageProducer) {
		if n > 0 {
			p.initialErrorLimit = n
		}
	}
}

// WithLogger sets the logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *MessageProducer) {
		if l != nil {
			p.logger = l
		}
	}
}

// MessageProducer couples one parser with one byte source. It is not
// safe for concurrent use, except that SDEIncome may overlap FetchData.
type MessageProducer struct {
	parser parser.Parser
	source source.ByteSource
	filter *source.Filter
	logger *slog.Logger

	initialErrorLimit int

	lastSeenTS         *uint64
	totalProducedItems uint64
	stats              Stats
}

// New creates a producer reading from s with p.
func New(p parser.Parser, s source.ByteSource, opts ...Option) *MessageProducer {
	mp := &MessageProducer{
		parser:            p,
		source:            s,
		logger:            slog.New(slog.DiscardHandler),
		initialErrorLimit: DefaultInitialParseErrorLimit,
	}
	for _, opt := range opts {
		opt(mp)
	}
	return mp
}

// FetchData loads more bytes from the source. On error the producer
// state is left unchanged and the source error is returned as is.
func (p *MessageProducer) FetchData(ctx context.Context) (FetchInfo, error) {
	info, err := p.source.Load(ctx, p.filter)
	if err != nil {
		return FetchInfo{}, err
	}

	if info == nil {
		return FetchInfo{AvailableBytes: p.source.Len()}, nil
	}

	if info.LastKnownTS != nil {
		ts := *info.LastKnownTS
		p.lastSeenTS = &ts
	}
	p.stats.LoadedBytes += uint64(info.NewlyLoadedBytes)
	p.stats.SkippedBytes += uint64(info.SkippedBytes)

	return FetchInfo{
		NewlyLoadedBytes: info.NewlyLoadedBytes,
		AvailableBytes:   info.AvailableBytes,
		SkippedBytes:     info.SkippedBytes,
	}, nil
}

// ProcessData parses buffered bytes into buf.
//
// It returns (infos, nil) when the parser produced items, (nil, nil)
// when the buffer ran empty, and (nil, err) with a *parser.Error
// otherwise. A trailing partial unit is reported as parser.ErrIncomplete
// and left in place. Unparseable bytes are dropped one at a time until
// the parser succeeds; if nothing has ever been produced and more than the
// initial error limit has been dropped in this call, the input is
// rejected as unrecoverable.
//
// Records are counted as skipped when buf is nil.
func (p *MessageProducer) ProcessData(buf RecordsBuffer) (*ParseOperationInfos, error) {
	dropped := 0

	for {
		if p.totalProducedItems == 0 && dropped > p.initialErrorLimit {
			return nil, parser.NewUnrecoverableError(
				"dropped %d bytes without producing a message; input does not match the parser", dropped)
		}

		data := p.source.CurrentSlice()
		if len(data) == 0 {
			return nil, nil
		}

		items, err := p.parser.Parse(data, p.lastSeenTS)
		if err == nil {
			infos := p.emit(items, len(data), buf)
			return infos, nil
		}

		var perr *parser.Error
		if !errors.As(err, &perr) {
			return nil, parser.NewUnrecoverableError("%v", err)
		}

		switch perr.Kind {
		case parser.KindIncomplete:
			// The tail of the buffer is a partial unit. Parsers bound the
			// size of a unit, so it is kept until more bytes arrive.
			return nil, perr

		case parser.KindParse:
			p.logger.Debug("dropping byte after parse error", "error", perr, "available", len(data))
			p.drop()
			dropped += dropStep
			if !p.source.IsEmpty() {
				continue
			}
			return nil, perr

		default:
			return nil, perr
		}
	}
}

func (p *MessageProducer) emit(items []parser.Item, available int, buf RecordsBuffer) *ParseOperationInfos {
	infos := &ParseOperationInfos{}
	for _, it := range items {
		if it.Consumed < 0 {
			panic(fmt.Sprintf("producer: parser reported negative consumption %d", it.Consumed))
		}
		infos.Consumed += it.Consumed
		if it.Record != nil && buf != nil {
			buf.Append(*it.Record)
			infos.ParsedMsgs++
		} else {
			infos.SkippedMsgs++
		}
	}
	if infos.Consumed > available {
		panic(fmt.Sprintf("producer: parser consumed %d of %d available bytes", infos.Consumed, available))
	}

	p.source.Consume(infos.Consumed)
	p.totalProducedItems += uint64(infos.ParsedMsgs)
	p.stats.ConsumedBytes += uint64(infos.Consumed)
	p.stats.ParsedMsgs += uint64(infos.ParsedMsgs)
	p.stats.SkippedMsgs += uint64(infos.SkippedMsgs)
	return infos
}

func (p *MessageProducer) drop() {
	p.source.Consume(dropStep)
	p.stats.DroppedBytes += dropStep
}

// SDEIncome forwards req to the source.
func (p *MessageProducer) SDEIncome(ctx context.Context, req source.SDERequest) (source.SDEResponse, error) {
	sde, ok := p.source.(source.SDESource)
	if !ok {
		return source.SDEResponse{}, source.ErrSDENotSupported
	}
	return sde.Income(ctx, req)
}

// TotalProducedItems returns the number of records appended so far.
func (p *MessageProducer) TotalProducedItems() uint64 { return p.totalProducedItems }

// Stats returns a snapshot of the cumulative counters.
func (p *MessageProducer) Stats() Stats { return p.stats }

// Source returns the underlying byte source.
func (p *MessageProducer) Source() source.ByteSource { return p.source }
