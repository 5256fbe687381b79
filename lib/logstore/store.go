// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/sqlitepool"
)

// Schema creates the backlog table.
const Schema = `
CREATE TABLE IF NOT EXISTS logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	group_name TEXT    NOT NULL,
	log_type   TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	encoding   INTEGER NOT NULL,
	raw_size   INTEGER NOT NULL,
	digest     BLOB    NOT NULL,
	payload    BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS logs_group_id ON logs (group_name, id);
`

// DefaultCompressThreshold is the payload size from which rows are
// LZ4-compressed.
const DefaultCompressThreshold = 1024

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("logstore: closed")

// Config configures a Store.
type Config struct {
	// Pool is the database, opened with Schema. Required. The Store
	// does not close it.
	Pool *sqlitepool.Pool

	// CompressThreshold is the payload size in bytes from which
	// payloads are compressed. Zero means DefaultCompressThreshold;
	// negative disables compression.
	CompressThreshold int

	// Clock stamps created_at. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives eviction and corruption warnings. Nil discards.
	Logger *slog.Logger
}

// Entry is one claimed row.
type Entry struct {
	ID      int64
	Type    string
	Payload []byte
}

// Batch is a claimed set of rows. A zero ID means nothing was
// available to claim.
type Batch struct {
	ID      string
	Group   string
	Entries []Entry
}

// IDs returns the row ids of b, oldest first.
func (b Batch) IDs() []int64 {
	ids := make([]int64, len(b.Entries))
	for i, entry := range b.Entries {
		ids[i] = entry.ID
	}
	return ids
}

// PutResult describes a committed insert.
type PutResult struct {
	// ID is the new row.
	ID int64
	// Evicted is how many of the group's oldest rows were deleted to
	// stay within capacity.
	Evicted int
	// EvictedUnclaimed is the part of Evicted that belonged to no
	// batch. Rows of an in-flight batch can be evicted too; they were
	// already taken out of the caller's pending count when claimed.
	EvictedUnclaimed int
}

// CorruptEntryError describes a row that failed integrity checks.
type CorruptEntryError struct {
	ID     int64
	Reason string
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("logstore: row %d corrupt: %s", e.ID, e.Reason)
}

type batchKey struct {
	group string
	id    string
}

// Store is the persistent log backlog. Every operation holds one mutex,
// so claims never overlap and eviction never races a claim.
type Store struct {
	pool              *sqlitepool.Pool
	clock             clock.Clock
	logger            *slog.Logger
	compressThreshold int

	mu       sync.Mutex
	closed   bool
	capacity map[string]int
	claimed  map[int64]batchKey
	batches  map[batchKey][]int64
}

// New returns a Store over cfg.Pool.
func New(cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("logstore: Pool is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	threshold := cfg.CompressThreshold
	if threshold == 0 {
		threshold = DefaultCompressThreshold
	}
	return &Store{
		pool:              cfg.Pool,
		clock:             clk,
		logger:            logger,
		compressThreshold: threshold,
		capacity:          make(map[string]int),
		claimed:           make(map[int64]batchKey),
		batches:           make(map[batchKey][]int64),
	}, nil
}

// SetCapacity bounds the number of rows kept for group. max <= 0
// removes the bound. The bound is enforced on the next Put.
func (s *Store) SetCapacity(group string, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 {
		delete(s.capacity, group)
		return
	}
	s.capacity[group] = max
}

// Put durably inserts one serialized log. When the insert takes the
// group past its capacity, the oldest rows are deleted in the same
// transaction.
func (s *Store) Put(ctx context.Context, group, logType string, payload []byte) (PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PutResult{}, ErrClosed
	}
	if len(payload) == 0 {
		return PutResult{}, fmt.Errorf("logstore: put %s: empty payload", group)
	}

	row := encodePayload(payload, s.compressThreshold)
	capacity := s.capacity[group]
	var result PutResult
	var evictedIDs []int64

	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO logs (group_name, log_type, created_at, encoding, raw_size, digest, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				group, logType, s.clock.Now().UnixMilli(),
				int(row.encoding), len(payload), row.digest[:], row.stored,
			}})
		if err != nil {
			return err
		}
		result.ID = conn.LastInsertRowID()

		if capacity <= 0 {
			return nil
		}
		count, err := countRows(conn, group)
		if err != nil {
			return err
		}
		excess := count - capacity
		if excess <= 0 {
			return nil
		}
		err = sqlitex.Execute(conn,
			`SELECT id FROM logs WHERE group_name = ? ORDER BY id LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{group, excess},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					evictedIDs = append(evictedIDs, stmt.ColumnInt64(0))
					return nil
				},
			})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`DELETE FROM logs WHERE group_name = ? AND id <= ?`,
			&sqlitex.ExecOptions{Args: []any{group, evictedIDs[len(evictedIDs)-1]}})
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("logstore: put %s: %w", group, err)
	}

	result.Evicted = len(evictedIDs)
	for _, id := range evictedIDs {
		if _, claimed := s.claimed[id]; !claimed {
			result.EvictedUnclaimed++
		}
	}
	if result.Evicted > 0 {
		s.forgetLocked(evictedIDs)
		s.logger.Warn("log store at capacity, evicted oldest logs",
			"group", group,
			"capacity", capacity,
			"evicted", result.Evicted,
			"evicted_in_flight", result.Evicted-result.EvictedUnclaimed,
		)
	}
	return result, nil
}

// Claim selects up to limit of group's oldest unclaimed rows and
// records them as one batch. Corrupt rows met on the way are deleted
// and do not count toward limit.
func (s *Store) Claim(ctx context.Context, group string, limit int) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Batch{}, ErrClosed
	}
	if limit <= 0 {
		return Batch{}, nil
	}

	var entries []Entry
	var corrupt []int64
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT id, log_type, encoding, raw_size, digest, payload
			FROM logs WHERE group_name = ? ORDER BY id`,
			&sqlitex.ExecOptions{
				Args: []any{group},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					id := stmt.ColumnInt64(0)
					if _, held := s.claimed[id]; held {
						return nil
					}
					payload, err := decodeRow(id, stmt)
					if err != nil {
						s.logger.Warn("deleting corrupt log row", "group", group, "error", err)
						corrupt = append(corrupt, id)
						return nil
					}
					entries = append(entries, Entry{ID: id, Type: stmt.ColumnText(1), Payload: payload})
					if len(entries) == limit {
						return errScanDone
					}
					return nil
				},
			})
	})
	if err != nil && !errors.Is(err, errScanDone) {
		return Batch{}, fmt.Errorf("logstore: claim %s: %w", group, err)
	}

	if len(corrupt) > 0 {
		if err := s.deleteRowsLocked(ctx, group, corrupt); err != nil {
			s.logger.Error("deleting corrupt log rows failed", "group", group, "error", err)
		}
	}
	if len(entries) == 0 {
		return Batch{}, nil
	}

	key := batchKey{group: group, id: uuid.NewString()}
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
		s.claimed[entry.ID] = key
	}
	s.batches[key] = ids
	return Batch{ID: key.id, Group: group, Entries: entries}, nil
}

// errScanDone stops a row scan once enough rows are collected.
var errScanDone = errors.New("scan done")

// DeleteBatch removes the rows of a claimed batch and its claim.
// Deleting an unknown batch is a no-op.
func (s *Store) DeleteBatch(ctx context.Context, group, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	key := batchKey{group: group, id: batchID}
	ids, ok := s.batches[key]
	if !ok {
		return nil
	}
	delete(s.batches, key)
	for _, id := range ids {
		delete(s.claimed, id)
	}
	if err := s.deleteRowsLocked(ctx, group, ids); err != nil {
		return fmt.Errorf("logstore: delete batch %s: %w", batchID, err)
	}
	return nil
}

// DeleteLogs removes specific rows of group, claimed or not.
func (s *Store) DeleteLogs(ctx context.Context, group string, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.deleteRowsLocked(ctx, group, ids); err != nil {
		return fmt.Errorf("logstore: delete logs: %w", err)
	}
	return nil
}

// DeleteGroup removes every row of group and every claim on them. It
// returns the number of rows deleted.
func (s *Store) DeleteGroup(ctx context.Context, group string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var deleted int
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM logs WHERE group_name = ?`,
			&sqlitex.ExecOptions{Args: []any{group}}); err != nil {
			return err
		}
		deleted = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("logstore: delete group %s: %w", group, err)
	}
	for key, ids := range s.batches {
		if key.group != group {
			continue
		}
		for _, id := range ids {
			delete(s.claimed, id)
		}
		delete(s.batches, key)
	}
	return deleted, nil
}

// DeleteAll removes every row of every group, including groups no
// longer registered, and drops all claims.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var deleted int
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM logs`, nil); err != nil {
			return err
		}
		deleted = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("logstore: delete all: %w", err)
	}
	clear(s.claimed)
	clear(s.batches)
	return deleted, nil
}

// Count returns the number of rows stored for group, claimed or not.
func (s *Store) Count(ctx context.Context, group string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var count int
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		var err error
		count, err = countRows(conn, group)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("logstore: count %s: %w", group, err)
	}
	return count, nil
}

// Release drops the claim on a batch without deleting its rows; they
// become claimable again.
func (s *Store) Release(group, batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := batchKey{group: group, id: batchID}
	for _, id := range s.batches[key] {
		delete(s.claimed, id)
	}
	delete(s.batches, key)
}

// ReleaseAll drops every claim.
func (s *Store) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.claimed)
	clear(s.batches)
}

// claimedCount returns the number of rows currently claimed across all
// groups.
func (s *Store) claimedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claimed)
}

// Close makes every later operation fail with ErrClosed. The pool
// stays open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.claimed)
	clear(s.batches)
	return nil
}

// deleteRowsLocked deletes ids of group and forgets their claims.
// s.mu must be held.
func (s *Store) deleteRowsLocked(ctx context.Context, group string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		for _, id := range ids {
			if err := sqlitex.Execute(conn, `DELETE FROM logs WHERE group_name = ? AND id = ?`,
				&sqlitex.ExecOptions{Args: []any{group, id}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.forgetLocked(ids)
	return nil
}

// forgetLocked drops claims on ids. A batch whose last row is gone is
// dropped too. s.mu must be held.
func (s *Store) forgetLocked(ids []int64) {
	for _, id := range ids {
		key, ok := s.claimed[id]
		if !ok {
			continue
		}
		delete(s.claimed, id)
		remaining := s.batches[key][:0]
		for _, other := range s.batches[key] {
			if other != id {
				remaining = append(remaining, other)
			}
		}
		if len(remaining) == 0 {
			delete(s.batches, key)
		} else {
			s.batches[key] = remaining
		}
	}
}

func countRows(conn *sqlite.Conn, group string) (int, error) {
	var count int
	err := sqlitex.Execute(conn, `SELECT COUNT(*) FROM logs WHERE group_name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{group},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	return count, err
}
