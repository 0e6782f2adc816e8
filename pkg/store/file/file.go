// Package file stores session output in a directory: one text log per
// source plus content-addressed, compressed attachments.
//
// Layout:
//
//	<dir>/source-<id>.log
//	<dir>/sources.cbor
//	<dir>/attachments/<blake3>.<ext>
//	<dir>/attachments/<blake3>.<seq>.cbor
//
// A payload is stored once per hash; every attachment that carries it
// gets its own sidecar, numbered from 0 in arrival order.
package file

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/store"
)

// Config configures a Store.
type Config struct {
	Dir         string
	Compression Compression
	Logger      *slog.Logger
}

// Meta is the sidecar written next to every attachment payload.
type Meta struct {
	SourceID    uint16      `cbor:"1,keyasint"`
	Name        string      `cbor:"2,keyasint,omitempty"`
	MIME        string      `cbor:"3,keyasint,omitempty"`
	Size        uint64      `cbor:"4,keyasint"`
	Created     int64       `cbor:"5,keyasint,omitempty"`
	Modified    int64       `cbor:"6,keyasint,omitempty"`
	Messages    []uint64    `cbor:"7,keyasint,omitempty"`
	Compression Compression `cbor:"8,keyasint"`
	Hash        string      `cbor:"9,keyasint"`
}

type sourceEntry struct {
	ID       uint16 `cbor:"id"`
	Name     string `cbor:"name"`
	Kind     string `cbor:"kind"`
	Location string `cbor:"location,omitempty"`
}

type sourceLog struct {
	file *os.File
	w    *bufio.Writer
}

// Store is a directory-backed store.Store.
type Store struct {
	dir         string
	compression Compression
	logger      *slog.Logger

	mu      sync.Mutex
	closed  bool
	sources []sourceEntry
	logs    map[uint16]*sourceLog
	blobs   map[string]*blob
}

// blob tracks a stored payload and how many sidecars refer to it.
type blob struct {
	method Compression
	refs   int
	ready  chan struct{}
	err    error
}

var _ store.Store = (*Store)(nil)

// Open creates cfg.Dir if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file store: Dir is required")
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionZstd
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, "attachments"), 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}

	return &Store{
		dir:         cfg.Dir,
		compression: cfg.Compression,
		logger:      logger,
		logs:        make(map[uint16]*sourceLog),
		blobs:       make(map[string]*blob),
	}, nil
}

// LogPath returns the text log of a source.
func (s *Store) LogPath(id uint16) string {
	return filepath.Join(s.dir, fmt.Sprintf("source-%d.log", id))
}

// AddSource creates the source's log file.
func (s *Store) AddSource(_ context.Context, desc store.SourceDesc) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	if len(s.sources) >= 0xFFFF {
		return 0, fmt.Errorf("file store: too many sources")
	}

	id := uint16(len(s.sources) + 1)
	f, err := os.OpenFile(s.LogPath(id), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("file store: %w", err)
	}
	s.logs[id] = &sourceLog{file: f, w: bufio.NewWriterSize(f, 64*1024)}
	s.sources = append(s.sources, sourceEntry{ID: id, Name: desc.Name, Kind: desc.Kind, Location: desc.Location})
	return id, nil
}

// Write appends text to the source log.
func (s *Store) Write(_ context.Context, sourceID uint16, text []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	l, ok := s.logs[sourceID]
	if !ok {
		return fmt.Errorf("file store: unknown source %d", sourceID)
	}
	if _, err := l.w.Write(text); err != nil {
		return fmt.Errorf("file store: writing source %d: %w", sourceID, err)
	}
	return nil
}

// AddAttachment stores the payload under its BLAKE3 hash and writes a
// sidecar for this attachment. Identical payloads are stored once.
func (s *Store) AddAttachment(_ context.Context, sourceID uint16, att *parser.Attachment) error {
	sum := blake3.Sum256(att.Data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	b, seen := s.blobs[hash]
	if !seen {
		b = &blob{ready: make(chan struct{})}
		s.blobs[hash] = b
	}
	seq := b.refs
	b.refs++
	s.mu.Unlock()

	if seen {
		<-b.ready
		if b.err != nil {
			return b.err
		}
		s.logger.Debug("attachment payload already stored", "hash", hash, "name", att.Name, "seq", seq)
	} else {
		b.method, b.err = s.storePayload(hash, att)
		close(b.ready)
		if b.err != nil {
			return b.err
		}
	}

	meta := Meta{
		SourceID:    sourceID,
		Name:        att.Name,
		MIME:        att.MIME,
		Size:        uint64(len(att.Data)),
		Created:     millis(att.Created),
		Modified:    millis(att.Modified),
		Messages:    att.Messages,
		Compression: b.method,
		Hash:        hash,
	}
	encoded, err := cbor.Marshal(meta)
	if err != nil {
		return fmt.Errorf("file store: encoding metadata: %w", err)
	}
	if err := writeFileAtomic(s.metaPath(hash, seq), encoded); err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	return nil
}

func (s *Store) storePayload(hash string, att *parser.Attachment) (Compression, error) {
	method := s.compression
	payload, err := compress(att.Data, method)
	if errors.Is(err, errIncompressible) {
		method, payload, err = CompressionNone, att.Data, nil
	}
	if err != nil {
		return "", fmt.Errorf("file store: compressing %q: %w", att.Name, err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, "attachments", hash+method.extension()), payload); err != nil {
		return "", fmt.Errorf("file store: %w", err)
	}
	return method, nil
}

func (s *Store) metaPath(hash string, seq int) string {
	return filepath.Join(s.dir, "attachments", hash+"."+strconv.Itoa(seq)+".cbor")
}

// Metas returns the sidecars stored for hash in arrival order.
func (s *Store) Metas(hash string) ([]Meta, error) {
	var metas []Meta
	for seq := 0; ; seq++ {
		raw, err := os.ReadFile(s.metaPath(hash, seq))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		var meta Meta
		if err := cbor.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("file store: decoding metadata: %w", err)
		}
		metas = append(metas, meta)
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("file store: attachment %s: %w", hash, os.ErrNotExist)
	}
	return metas, nil
}

// Attachment reads a stored attachment back by hash, with the metadata
// of the first attachment that carried it.
func (s *Store) Attachment(hash string) (*parser.Attachment, error) {
	metas, err := s.Metas(hash)
	if err != nil {
		return nil, err
	}
	meta := metas[0]

	payload, err := os.ReadFile(filepath.Join(s.dir, "attachments", hash+meta.Compression.extension()))
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	data, err := decompress(payload, meta.Compression, int(meta.Size))
	if err != nil {
		return nil, fmt.Errorf("file store: attachment %s: %w", hash, err)
	}

	att := &parser.Attachment{
		Name:     meta.Name,
		MIME:     meta.MIME,
		Size:     meta.Size,
		Messages: meta.Messages,
		Data:     data,
	}
	if meta.Created != 0 {
		att.Created = time.UnixMilli(meta.Created).UTC()
	}
	if meta.Modified != 0 {
		att.Modified = time.UnixMilli(meta.Modified).UTC()
	}
	return att, nil
}

// Flush pushes buffered text to the log files.
func (s *Store) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	var errs []error
	for id, l := range s.logs {
		if err := l.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("file store: flushing source %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes, writes the source index and closes every log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	errs := []error{s.flushLocked()}
	for _, l := range s.logs {
		errs = append(errs, l.file.Close())
	}

	index, err := cbor.Marshal(s.sources)
	if err == nil {
		err = writeFileAtomic(filepath.Join(s.dir, "sources.cbor"), index)
	}
	errs = append(errs, err)

	return errors.Join(errs...)
}

// Sources reads the index written by Close.
func Sources(dir string) ([]store.SourceDesc, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "sources.cbor"))
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	var entries []sourceEntry
	if err := cbor.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("file store: decoding source index: %w", err)
	}
	out := make([]store.SourceDesc, len(entries))
	for i, e := range entries {
		out[i] = store.SourceDesc{Name: e.Name, Kind: e.Kind, Location: e.Location}
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
