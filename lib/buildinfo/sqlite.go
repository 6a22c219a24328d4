// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/buildcache/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	target TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (target, key)
) WITHOUT ROWID;
`

// SQLiteStore keeps metadata in a single SQLite database.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: 4,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening build info store: %w", err)
	}
	return &SQLiteStore{pool: pool}, nil
}

func (s *SQLiteStore) ReadMetadata(ctx context.Context, target, key string) (value string, found bool, err error) {
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM metadata WHERE target = ? AND key = ?", &sqlitex.ExecOptions{
			Args: []any{target, key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value, found = stmt.ColumnText(0), true
				return nil
			},
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("reading %s of %s: %w", key, target, err)
	}
	return value, found, nil
}

func (s *SQLiteStore) ReadAllMetadata(ctx context.Context, target string) (map[string]string, error) {
	metadata := make(map[string]string)
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT key, value FROM metadata WHERE target = ?", &sqlitex.ExecOptions{
			Args: []any{target},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				metadata[stmt.ColumnText(0)] = stmt.ColumnText(1)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading metadata of %s: %w", target, err)
	}
	return metadata, nil
}

func (s *SQLiteStore) UpdateMetadata(ctx context.Context, target string, metadata map[string]string) error {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, key := range keys {
			err := sqlitex.Execute(conn, `
				INSERT INTO metadata (target, key, value) VALUES (?, ?, ?)
				ON CONFLICT (target, key) DO UPDATE SET value = excluded.value`,
				&sqlitex.ExecOptions{Args: []any{target, key, metadata[key]}})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating metadata of %s: %w", target, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMetadata(ctx context.Context, target string) error {
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM metadata WHERE target = ?", &sqlitex.ExecOptions{
			Args: []any{target},
		})
	})
	if err != nil {
		return fmt.Errorf("deleting metadata of %s: %w", target, err)
	}
	return nil
}

// Targets returns every target with stored metadata, sorted.
func (s *SQLiteStore) Targets(ctx context.Context) ([]string, error) {
	var targets []string
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT DISTINCT target FROM metadata ORDER BY target", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				targets = append(targets, stmt.ColumnText(0))
				return nil
			},
		})
	})
	return targets, err
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
