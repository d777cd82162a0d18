// Package sqlitestore keeps world meta and region blobs in a local
// SQLite file. It backs single-host deployments and development runs
// where an object store is overkill.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"worldvault.gg/internal/region"
	"worldvault.gg/internal/storage"
)

type Store struct {
	db *sql.DB
}

var _ storage.Backend = (*Store)(nil)

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps region flushes from blocking concurrent loads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS world_meta (
			bucket     TEXT NOT NULL,
			world_id   TEXT NOT NULL,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (bucket, world_id)
		);`,
		`CREATE TABLE IF NOT EXISTS regions (
			bucket     TEXT NOT NULL,
			world_id   TEXT NOT NULL,
			rx         INTEGER NOT NULL,
			rz         INTEGER NOT NULL,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (bucket, world_id, rx, rz)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func wrap(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %v", storage.ErrUnavailable, op, err)
}

func (s *Store) Exists(ctx context.Context, bucket, worldID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM world_meta WHERE bucket = ? AND world_id = ?`,
		bucket, worldID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("exists", err)
	}
	return true, nil
}

func (s *Store) GetMeta(ctx context.Context, bucket, worldID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM world_meta WHERE bucket = ? AND world_id = ?`,
		bucket, worldID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get meta", err)
	}
	return data, nil
}

func (s *Store) PutMeta(ctx context.Context, bucket, worldID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO world_meta (bucket, world_id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (bucket, world_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		bucket, worldID, data, now())
	if err != nil {
		return wrap("put meta", err)
	}
	return nil
}

func (s *Store) GetRegion(ctx context.Context, bucket, worldID string, coord region.Coord) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM regions WHERE bucket = ? AND world_id = ? AND rx = ? AND rz = ?`,
		bucket, worldID, coord.RX, coord.RZ).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get region", err)
	}
	return data, nil
}

func (s *Store) PutRegion(ctx context.Context, bucket, worldID string, coord region.Coord, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO regions (bucket, world_id, rx, rz, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, world_id, rx, rz) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		bucket, worldID, coord.RX, coord.RZ, data, now())
	if err != nil {
		return wrap("put region", err)
	}
	return nil
}

func (s *Store) ListRegions(ctx context.Context, bucket, worldID string) ([]region.Coord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rx, rz FROM regions WHERE bucket = ? AND world_id = ? ORDER BY rx, rz`,
		bucket, worldID)
	if err != nil {
		return nil, wrap("list regions", err)
	}
	defer rows.Close()

	var out []region.Coord
	for rows.Next() {
		var c region.Coord
		if err := rows.Scan(&c.RX, &c.RZ); err != nil {
			return nil, wrap("list regions", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list regions", err)
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, bucket, worldID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM regions WHERE bucket = ? AND world_id = ?`, bucket, worldID); err != nil {
		return wrap("delete regions", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM world_meta WHERE bucket = ? AND world_id = ?`, bucket, worldID); err != nil {
		return wrap("delete meta", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("delete", err)
	}
	return nil
}
