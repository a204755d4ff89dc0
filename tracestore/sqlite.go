package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/sarchlab/miniprof/profiling"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS traces (
	key         TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	url         TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	data        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS traces_expires_at ON traces (expires_at);
`

// SQLiteStore keeps records in a SQLite database file. The request metadata
// is kept in columns next to the encoded record, so the file can be queried
// with the sqlite3 shell.
type SQLiteStore struct {
	db    *sql.DB
	ttl   time.Duration
	clock profiling.Clock
}

// NewSQLiteStore opens, and creates if needed, the database at path.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}

	// Serializes writers and keeps a ":memory:" database on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:    db,
		ttl:   ttl,
		clock: profiling.WallClock(),
	}, nil
}

// Put stores the record under the key.
func (s *SQLiteStore) Put(ctx context.Context, key string, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	var expiresAt int64
	if s.ttl > 0 {
		expiresAt = s.clock.Now().Add(s.ttl).UnixNano()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO traces
			(key, request_id, url, timestamp, expires_at, data)
			VALUES (?, ?, ?, ?, ?, ?)`,
		key, rec.RequestID, rec.URL, rec.Timestamp.UnixNano(), expiresAt, data)
	if err != nil {
		return fmt.Errorf("put %s into sqlite store: %w", key, err)
	}

	return nil
}

// Get returns the record stored under the key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM traces
			WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.clock.Now().UnixNano(),
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get %s from sqlite store: %w", key, err)
	}

	return decodeRecord(data)
}

// PurgeExpired deletes the expired records and returns how many were
// deleted.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM traces WHERE expires_at != 0 AND expires_at <= ?`,
		s.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge sqlite store: %w", err)
	}

	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
