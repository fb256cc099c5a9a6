// Package favorites persists each client's favorited parent stops.
package favorites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"mtd-arrivals/internal/db"
)

// DefaultOwner is used for clients that do not identify themselves.
const DefaultOwner = "default"

// Store keeps favorites per owner in insertion order.
type Store interface {
	List(ctx context.Context, owner string) ([]string, error)
	Contains(ctx context.Context, owner, stopID string) (bool, error)
	Add(ctx context.Context, owner, stopID string) error
	Remove(ctx context.Context, owner, stopID string) error
	// Toggle flips the favorite state and returns the new one.
	Toggle(ctx context.Context, owner, stopID string) (bool, error)
	Ping(ctx context.Context) error
}

// Document is the wire shape of a favorites list.
type Document struct {
	List []string `json:"list"`
}

type dialect struct {
	name     string
	schema   string
	list     string
	contains string
	insert   string
	remove   string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `
CREATE TABLE IF NOT EXISTS favorites (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  owner      TEXT NOT NULL,
  stop_id    TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
  UNIQUE (owner, stop_id)
)`,
	list:     `SELECT stop_id FROM favorites WHERE owner = ? ORDER BY id`,
	contains: `SELECT 1 FROM favorites WHERE owner = ? AND stop_id = ?`,
	insert:   `INSERT INTO favorites (owner, stop_id) VALUES (?, ?) ON CONFLICT (owner, stop_id) DO NOTHING`,
	remove:   `DELETE FROM favorites WHERE owner = ? AND stop_id = ?`,
}

var postgresDialect = dialect{
	name: "postgres",
	schema: `
CREATE TABLE IF NOT EXISTS favorites (
  id         BIGSERIAL PRIMARY KEY,
  owner      TEXT NOT NULL,
  stop_id    TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (owner, stop_id)
)`,
	list:     `SELECT stop_id FROM favorites WHERE owner = $1 ORDER BY id`,
	contains: `SELECT 1 FROM favorites WHERE owner = $1 AND stop_id = $2`,
	insert:   `INSERT INTO favorites (owner, stop_id) VALUES ($1, $2) ON CONFLICT (owner, stop_id) DO NOTHING`,
	remove:   `DELETE FROM favorites WHERE owner = $1 AND stop_id = $2`,
}

// SQLStore implements Store over database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db *sql.DB
	d  dialect

	writeMu sync.Mutex // serializes toggles so check-then-write is atomic per process
}

func NewSQLiteStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn, d: sqliteDialect}
}

func NewPostgresStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn, d: postgresDialect}
}

// Dialect names the backing database.
func (s *SQLStore) Dialect() string { return s.d.name }

// EnsureSchema creates the favorites table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.d.schema); err != nil {
		return fmt.Errorf("ensure favorites schema (%s): %w", s.d.name, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.list, owner)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) Contains(ctx context.Context, owner, stopID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.d.contains, owner, stopID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query favorite %s: %w", stopID, err)
	}
	return true, nil
}

func (s *SQLStore) Add(ctx context.Context, owner, stopID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.add(ctx, owner, stopID)
}

func (s *SQLStore) add(ctx context.Context, owner, stopID string) error {
	if _, err := s.db.ExecContext(ctx, s.d.insert, owner, stopID); err != nil {
		return fmt.Errorf("insert favorite %s: %w", stopID, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, owner, stopID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.remove(ctx, owner, stopID)
}

func (s *SQLStore) remove(ctx context.Context, owner, stopID string) error {
	if _, err := s.db.ExecContext(ctx, s.d.remove, owner, stopID); err != nil {
		return fmt.Errorf("delete favorite %s: %w", stopID, err)
	}
	return nil
}

func (s *SQLStore) Toggle(ctx context.Context, owner, stopID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	on, err := s.Contains(ctx, owner, stopID)
	if err != nil {
		return false, err
	}
	if on {
		return false, s.remove(ctx, owner, stopID)
	}
	return true, s.add(ctx, owner, stopID)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.db)
}
