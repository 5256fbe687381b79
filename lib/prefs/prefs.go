// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package prefs is the small key-value store for client state that
// must survive restarts: the install identifier, session history, and
// enabled flags. Values are CBOR-encoded with lib/codec and kept in
// the "preferences" table of the client database.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/codec"
	"github.com/bureau-foundation/logship/lib/sqlitepool"
)

// Schema creates the preferences table.
const Schema = `
CREATE TABLE IF NOT EXISTS preferences (
	key        TEXT    PRIMARY KEY,
	value      BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Well-known keys.
const (
	KeyInstallID = "install_id"
	KeySessions  = "sessions"
	keyEnabled   = "enabled"
)

// Config configures a Store.
type Config struct {
	// Pool is the database, opened with Schema. Required.
	Pool *sqlitepool.Pool

	// Clock stamps updated_at. Nil means clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Store reads and writes preferences. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Store over cfg.Pool.
func New(cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("prefs: Pool is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{pool: cfg.Pool, clock: clk, logger: logger}, nil
}

// Get decodes the value stored under key into v. It reports false,
// leaving v untouched, when the key is absent.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw []byte
	found := false
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT value FROM preferences WHERE key = ?`,
			&sqlitex.ExecOptions{
				Args: []any{key},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					raw = make([]byte, stmt.ColumnLen(0))
					stmt.ColumnBytes(0, raw)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("prefs: decoding %s: %w", key, err)
	}
	return true, nil
}

// Put stores v under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("prefs: encoding %s: %w", key, err)
	}
	err = s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{key, raw, s.clock.Now().UnixMilli()}})
	})
	if err != nil {
		return fmt.Errorf("prefs: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `DELETE FROM preferences WHERE key = ?`,
			&sqlitex.ExecOptions{Args: []any{key}})
	})
	if err != nil {
		return fmt.Errorf("prefs: delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every key with the given prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT key FROM preferences ORDER BY key`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					if key := stmt.ColumnText(0); strings.HasPrefix(key, prefix) {
						keys = append(keys, key)
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("prefs: keys: %w", err)
	}
	return keys, nil
}

// InstallID returns the installation identifier, generating and
// persisting one on first use.
func (s *Store) InstallID(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	found, err := s.Get(ctx, KeyInstallID, &id)
	if err != nil {
		s.logger.Warn("stored install id unreadable, generating a new one", "error", err)
	}
	if found && id != uuid.Nil {
		return id, nil
	}
	id = uuid.New()
	if err := s.Put(ctx, KeyInstallID, id); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("generated install id", "install_id", id)
	return id, nil
}

// Enabled returns the persisted enabled flag for name, or the global
// flag when name is empty. Absent flags read as enabled.
func (s *Store) Enabled(ctx context.Context, name string) (bool, error) {
	enabled := true
	if _, err := s.Get(ctx, enabledKey(name), &enabled); err != nil {
		return true, err
	}
	return enabled, nil
}

// SetEnabled persists the enabled flag for name (global when empty).
func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return s.Put(ctx, enabledKey(name), enabled)
}

// GroupFlags returns every persisted per-group flag, keyed by group
// name. The global flag is not included.
func (s *Store) GroupFlags(ctx context.Context) (map[string]bool, error) {
	prefix := keyEnabled + "."
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	flags := make(map[string]bool, len(keys))
	for _, key := range keys {
		enabled := true
		if _, err := s.Get(ctx, key, &enabled); err != nil {
			s.logger.Warn("enabled flag unreadable, treating as enabled", "key", key, "error", err)
		}
		flags[strings.TrimPrefix(key, prefix)] = enabled
	}
	return flags, nil
}

func enabledKey(name string) string {
	if name == "" {
		return keyEnabled
	}
	return keyEnabled + "." + name
}
