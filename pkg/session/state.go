package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/store"
)

// EndReason records why a source's session ended.
type EndReason string

const (
	EndDrained       EndReason = "drained"
	EndCancelled     EndReason = "cancelled"
	EndEOF           EndReason = "eof"
	EndUnrecoverable EndReason = "unrecoverable"
	EndSourceError   EndReason = "source_error"
	EndTailClosed    EndReason = "tail_closed"
	EndTailError     EndReason = "tail_error"
	EndSinkError     EndReason = "sink_error"
)

// Failed reports whether the reason means the source did not finish
// cleanly.
func (r EndReason) Failed() bool {
	switch r {
	case EndUnrecoverable, EndSourceError, EndTailError, EndSinkError:
		return true
	default:
		return false
	}
}

// SourceStats is the per-source view of a session.
type SourceStats struct {
	ID   uint16
	Desc store.SourceDesc

	Records      uint64
	Attachments  uint64
	LoadedBytes  uint64
	DroppedBytes uint64
	ParsedMsgs   uint64
	SkippedMsgs  uint64
	ParseErrors  uint64
	FileRead     bool
	EndReason    EndReason
	EndDetail    string
	Started      time.Time
	Finished     time.Time
}

// State is the session-wide sink shared by every source. It forwards
// writes to a store and keeps per-source statistics.
type State struct {
	// OnFileRead, if set, is called when a source has been read to its
	// end. Set it before the session starts.
	OnFileRead func(stats SourceStats)

	store  store.Store
	logger *slog.Logger

	closing atomic.Bool

	mu          sync.Mutex
	sessionFile string
	sources     map[uint16]*SourceStats
	order       []uint16
	flushes     uint64
}

// NewState creates a State over st.
func NewState(st store.Store, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &State{
		store:   st,
		logger:  logger,
		sources: make(map[uint16]*SourceStats),
	}
}

// AddSource registers a source with the store.
func (s *State) AddSource(ctx context.Context, desc store.SourceDesc) (uint16, error) {
	id, err := s.store.AddSource(ctx, desc)
	if err != nil {
		return 0, fmt.Errorf("registering source %q: %w", desc.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[id] = &SourceStats{ID: id, Desc: desc}
	s.order = append(s.order, id)
	return id, nil
}

// WriteSessionFile stores newline-terminated text for a source.
func (s *State) WriteSessionFile(ctx context.Context, sourceID uint16, text []byte) error {
	if err := s.store.Write(ctx, sourceID, text); err != nil {
		return err
	}
	s.update(sourceID, func(st *SourceStats) {
		st.Records += uint64(bytes.Count(text, []byte{'\n'}))
	})
	return nil
}

// AddAttachment stores an attachment for a source.
func (s *State) AddAttachment(ctx context.Context, sourceID uint16, att *parser.Attachment) error {
	if err := s.store.AddAttachment(ctx, sourceID, att); err != nil {
		return err
	}
	s.update(sourceID, func(st *SourceStats) { st.Attachments++ })
	return nil
}

// FlushSessionFile makes everything written so far durable in the store.
func (s *State) FlushSessionFile(ctx context.Context) error {
	if err := s.store.Flush(ctx); err != nil {
		return fmt.Errorf("flushing session: %w", err)
	}
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

// Flushes returns how many times the session was flushed.
func (s *State) Flushes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// SetSessionFile records where session output goes. An empty path keeps
// the store's own location.
func (s *State) SetSessionFile(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionFile = path
	return nil
}

// SessionFile returns the path recorded by SetSessionFile.
func (s *State) SessionFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionFile
}

// FileRead marks a source as completely read.
func (s *State) FileRead(_ context.Context, sourceID uint16) error {
	var snapshot SourceStats
	s.update(sourceID, func(st *SourceStats) {
		st.FileRead = true
		snapshot = *st
	})
	s.logger.Info("source read", "source", snapshot.Desc.Name, "id", sourceID)
	if s.OnFileRead != nil {
		s.OnFileRead(snapshot)
	}
	return nil
}

// IsClosing reports whether Close has started.
func (s *State) IsClosing() bool { return s.closing.Load() }

// Close flushes and closes the store. Writes racing with Close may fail.
func (s *State) Close(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	flushErr := s.store.Flush(ctx)
	closeErr := s.store.Close()
	if flushErr != nil {
		return fmt.Errorf("flushing session: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing store: %w", closeErr)
	}
	return nil
}

// Summary returns per-source statistics in registration order.
func (s *State) Summary() []SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SourceStats, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.sources[id])
	}
	return out
}

func (s *State) sourceName(id uint16) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sources[id]; ok {
		return st.Desc.Name
	}
	return fmt.Sprintf("source-%d", id)
}

func (s *State) update(id uint16, fn func(*SourceStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sources[id]
	if !ok {
		st = &SourceStats{ID: id}
		s.sources[id] = st
		s.order = append(s.order, id)
	}
	fn(st)
}

func (s *State) markEnded(id uint16, reason EndReason, detail string) {
	s.update(id, func(st *SourceStats) {
		st.EndReason = reason
		st.EndDetail = detail
	})
}
