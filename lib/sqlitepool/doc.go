// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind the build
// info store. It wraps zombiezen.com/go/sqlite's sqlitex.Pool and
// applies the same pragmas to every connection:
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=NORMAL: survives process crashes without an fsync per
//     commit. Build metadata can always be recomputed by rebuilding, so
//     OS-crash durability is not worth the cost.
//   - busy_timeout=5000: concurrent build processes sharing a
//     workspace wait for the write lock instead of failing.
//   - cache_size=-4096 and temp_store=MEMORY.
//
// Callers write SQL directly with sqlitex.Execute. [Pool.Write] and
// [Pool.Read] borrow a connection and wrap the callback in a
// transaction:
//
//	err := pool.Write(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT ...", &sqlitex.ExecOptions{Args: args})
//	})
package sqlitepool
