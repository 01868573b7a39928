// Package resolvelog persists per-request resolution outcomes to SQLite for
// the /stats endpoint. Writes are asynchronous and batched; the log is an
// operational record, never a response cache.
package resolvelog

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Schema for the resolutions table. Call Store.Init() or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL,
	source TEXT NOT NULL,
	format TEXT NOT NULL,
	status INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolutions_ts ON resolutions(created_at);
CREATE INDEX IF NOT EXISTS idx_resolutions_domain ON resolutions(domain);
`

// Entry is one resolved request.
type Entry struct {
	Domain   string
	Source   string
	Format   string
	Status   int
	Duration time.Duration
}

// Store buffers entries and flushes them in batches.
type Store struct {
	db   *sql.DB
	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

// NewStore creates a store backed by the given database connection and
// starts its flush goroutine.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Entry, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Init creates the resolutions table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// RecordAsync queues an entry for persistence. Non-blocking; drops if the
// buffer is full so the request path never waits on the log.
func (s *Store) RecordAsync(e *Entry) {
	select {
	case s.ch <- e:
	default:
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("resolvelog: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO resolutions (domain, source, format, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("resolvelog: prepare", "error", err)
		return
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, e := range batch {
		if _, err := stmt.Exec(e.Domain, e.Source, e.Format, e.Status, e.Duration.Milliseconds(), now); err != nil {
			tx.Rollback()
			slog.Error("resolvelog: insert", "error", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("resolvelog: commit", "error", err)
	}
}

// Stats is the aggregate returned by the /stats endpoint.
type Stats struct {
	Total         int64            `json:"total"`
	BySource      map[string]int64 `json:"bySource"`
	ByFormat      map[string]int64 `json:"byFormat"`
	AvgDurationMs float64          `json:"avgDurationMs"`
}

// Stats aggregates the resolution log. Pending async entries may not be
// included yet.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{BySource: map[string]int64{}, ByFormat: map[string]int64{}}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(duration_ms), 0) FROM resolutions`)
	if err := row.Scan(&out.Total, &out.AvgDurationMs); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM resolutions GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out.BySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT format, COUNT(*) FROM resolutions GROUP BY format`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var format string
		var n int64
		if err := rows.Scan(&format, &n); err != nil {
			return nil, err
		}
		out.ByFormat[format] = n
	}
	return out, rows.Err()
}
