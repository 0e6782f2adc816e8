// Package sqlite stores session output in a SQLite database, one row per
// record line, so sessions can be queried after the fact.
package sqlite

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS records (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL,
	line      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_source ON records (source_id, id);

CREATE TABLE IF NOT EXISTS attachments (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL,
	name      TEXT NOT NULL DEFAULT '',
	mime      TEXT NOT NULL DEFAULT '',
	size      INTEGER NOT NULL,
	created   INTEGER,
	modified  INTEGER,
	messages  TEXT NOT NULL DEFAULT '',
	data      BLOB
);
`

// Config configures a Store.
type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Store is a SQLite-backed store.Store.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
	closed atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}

	s := &Store{pool: pool, logger: logger, path: cfg.Path}
	if err := s.migrate(); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", "path", cfg.Path, "pool_size", poolSize)
	return s, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite store: creating schema: %w", err)
	}
	return nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: take: %w", err)
	}
	return conn, nil
}

// AddSource registers a source and returns its id.
func (s *Store) AddSource(ctx context.Context, desc store.SourceDesc) (uint16, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO sources (name, kind, location) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{desc.Name, desc.Kind, desc.Location}})
	if err != nil {
		return 0, fmt.Errorf("sqlite store: add source %q: %w", desc.Name, err)
	}

	id := conn.LastInsertRowID()
	if id > 0xFFFF {
		return 0, fmt.Errorf("sqlite store: source id %d out of range", id)
	}
	return uint16(id), nil
}

// Write inserts every line of text in a single transaction.
func (s *Store) Write(ctx context.Context, sourceID uint16, text []byte) (err error) {
	if len(text) == 0 {
		return nil
	}

	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	stmt := conn.Prep(`INSERT INTO records (source_id, line) VALUES (?, ?)`)
	defer func() { _ = stmt.Reset() }()
	for len(text) > 0 {
		line := text
		if idx := bytes.IndexByte(text, '\n'); idx >= 0 {
			line, text = text[:idx], text[idx+1:]
		} else {
			text = nil
		}

		stmt.BindInt64(1, int64(sourceID))
		stmt.BindText(2, string(line))
		if _, err = stmt.Step(); err != nil {
			return fmt.Errorf("sqlite store: insert record: %w", err)
		}
		if err = stmt.Reset(); err != nil {
			return fmt.Errorf("sqlite store: insert record: %w", err)
		}
	}
	return nil
}

// AddAttachment stores att with its payload.
func (s *Store) AddAttachment(ctx context.Context, sourceID uint16, att *parser.Attachment) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO attachments (source_id, name, mime, size, created, modified, messages, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			int64(sourceID),
			att.Name,
			att.MIME,
			int64(att.Size),
			unixMilli(att.Created),
			unixMilli(att.Modified),
			joinPositions(att.Messages),
			att.Data,
		}})
	if err != nil {
		return fmt.Errorf("sqlite store: add attachment %q: %w", att.Name, err)
	}
	return nil
}

// Flush is a no-op: every Write commits its own transaction.
func (s *Store) Flush(context.Context) error { return nil }

// Close closes the pool. Blocks until borrowed connections are returned.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.pool.Close(); err != nil {
		s.logger.Error("sqlite store close error", "path", s.path, "error", err)
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", "path", s.path)
	return nil
}

func joinPositions(ps []uint64) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(parts, ",")
}

func splitPositions(s string) []uint64 {
	if s == "" {
		return nil
	}
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		if v, err := strconv.ParseUint(part, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
