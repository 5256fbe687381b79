// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database that backs logship's
// local state.
//
// The log backlog and the preference store live in one database file
// and share one pool. The package wraps zombiezen.com/go/sqlite's
// sqlitex.Pool, which manages a fixed-size set of connections. Callers
// [Pool.Take] a connection, do their work, and [Pool.Put] it back.
// Connections are NOT safe for concurrent use: each goroutine holds its
// own connection for the duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: write-ahead logging. The send path reads a
//     batch while enqueue appends rows, and neither blocks the other.
//   - synchronous=NORMAL, or FULL when [Config.Durable] is set. NORMAL
//     survives process crashes but not power loss. The log backlog is
//     opened durable: a log whose Put has returned must survive either.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//     instead of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: the backlog has a single table and keys batch
//     membership in memory, so there is nothing to cascade.
//   - cache_size=-2048: 2 MB page cache per connection. An embedded
//     client shares the host process's memory.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// After the pragmas, each script in [Config.Schema] runs on the new
// connection. Scripts must be idempotent.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:    filepath.Join(dataDir, "logship.db"),
//	    Durable: true,
//	    Schema:  []string{logstore.Schema, prefs.Schema},
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// [Pool.With] and [Pool.Immediate] take care of the Take/Put pairing,
// and Immediate also commits or rolls back a BEGIN IMMEDIATE
// transaction:
//
//	err := pool.Immediate(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "DELETE FROM logs WHERE id = ?",
//	        &sqlitex.ExecOptions{Args: []any{id}})
//	})
//
// # Design
//
// The package is thin: it applies the pragmas and exposes the
// zombiezen types directly. There is no query builder and no attempt
// to hide SQLite's connection model. Callers write SQL, use
// sqlitex.Execute for cached statements, and keep multi-statement
// changes inside Immediate.
package sqlitepool
