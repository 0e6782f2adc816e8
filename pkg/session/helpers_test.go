package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/store"
)

// memStore records every call it receives.
type memStore struct {
	mu       sync.Mutex
	calls    []string
	sources  []store.SourceDesc
	writeErr error
	flushes  int
	closed   bool
}

func (m *memStore) AddSource(_ context.Context, desc store.SourceDesc) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, desc)
	return uint16(len(m.sources)), nil
}

func (m *memStore) Write(_ context.Context, id uint16, text []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.calls = append(m.calls, fmt.Sprintf("write:%d:%s", id, text))
	return nil
}

func (m *memStore) AddAttachment(_ context.Context, id uint16, att *parser.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("attach:%d:%s", id, att.Name))
	return nil
}

func (m *memStore) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	m.calls = append(m.calls, "flush")
	return nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memStore) writes() []string {
	var out []string
	for _, c := range m.snapshot() {
		if len(c) > 6 && c[:6] == "write:" {
			out = append(out, c)
		}
	}
	return out
}

func (m *memStore) flushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// recordingTarget is a SinkTarget that keeps calls in order.
type recordingTarget struct {
	calls    []string
	writeErr error
}

func (r *recordingTarget) WriteSessionFile(_ context.Context, id uint16, text []byte) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.calls = append(r.calls, fmt.Sprintf("text:%d:%s", id, text))
	return nil
}

func (r *recordingTarget) AddAttachment(_ context.Context, id uint16, att *parser.Attachment) error {
	r.calls = append(r.calls, fmt.Sprintf("att:%d:%s", id, att.Name))
	return nil
}
