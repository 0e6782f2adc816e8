package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/store"
)

// DefaultPageSize is used when Query.Limit is zero.
const DefaultPageSize = 100

// Query selects stored records.
type Query struct {
	// SourceID restricts results to one source. Zero means all.
	SourceID uint16
	// Search is a case-insensitive substring match on the line.
	Search string
	Offset int
	Limit  int
}

// Record is one stored line.
type Record struct {
	ID       int64
	SourceID uint16
	Line     string
}

// Columns splits the line on the column separator.
func (r Record) Columns() []string {
	return strings.Split(r.Line, string(parser.ColumnSentinel))
}

// SourceInfo is a registered source with its record count.
type SourceInfo struct {
	ID uint16
	store.SourceDesc
	Records int64
}

func (q Query) where() (string, []any) {
	var conditions []string
	var args []any

	if q.SourceID != 0 {
		conditions = append(conditions, "source_id = ?")
		args = append(args, int64(q.SourceID))
	}
	if q.Search != "" {
		conditions = append(conditions, "line LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Records returns one page of records in insertion order.
func (s *Store) Records(ctx context.Context, q Query) ([]Record, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	where, args := q.where()
	query := "SELECT id, source_id, line FROM records" + where + " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	var records []Record
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, Record{
				ID:       stmt.ColumnInt64(0),
				SourceID: uint16(stmt.ColumnInt64(1)),
				Line:     stmt.ColumnText(2),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query records: %w", err)
	}
	return records, nil
}

// Count returns how many records match q. Offset and Limit are ignored.
func (s *Store) Count(ctx context.Context, q Query) (int64, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	where, args := q.where()
	var n int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM records"+where, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite store: count records: %w", err)
	}
	return n, nil
}

// Sources lists registered sources.
func (s *Store) Sources(ctx context.Context) ([]SourceInfo, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []SourceInfo
	err = sqlitex.Execute(conn,
		`SELECT s.id, s.name, s.kind, s.location,
		        (SELECT COUNT(*) FROM records r WHERE r.source_id = s.id)
		 FROM sources s ORDER BY s.id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, SourceInfo{
					ID: uint16(stmt.ColumnInt64(0)),
					SourceDesc: store.SourceDesc{
						Name:     stmt.ColumnText(1),
						Kind:     stmt.ColumnText(2),
						Location: stmt.ColumnText(3),
					},
					Records: stmt.ColumnInt64(4),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query sources: %w", err)
	}
	return out, nil
}

// Attachments returns the attachments of a source, payload included.
func (s *Store) Attachments(ctx context.Context, sourceID uint16) ([]parser.Attachment, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []parser.Attachment
	err = sqlitex.Execute(conn,
		`SELECT name, mime, size, created, modified, messages, data
		 FROM attachments WHERE source_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{int64(sourceID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				att := parser.Attachment{
					Name:     stmt.ColumnText(0),
					MIME:     stmt.ColumnText(1),
					Size:     uint64(stmt.ColumnInt64(2)),
					Messages: splitPositions(stmt.ColumnText(5)),
				}
				if !stmt.ColumnIsNull(3) {
					att.Created = time.UnixMilli(stmt.ColumnInt64(3)).UTC()
				}
				if !stmt.ColumnIsNull(4) {
					att.Modified = time.UnixMilli(stmt.ColumnInt64(4)).UTC()
				}
				att.Data = make([]byte, stmt.ColumnLen(6))
				stmt.ColumnBytes(6, att.Data)
				out = append(out, att)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query attachments: %w", err)
	}
	return out, nil
}

func unixMilli(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
