// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqltest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// NewSQLiteDB creates an isolated fresh SQLite database in a temporary
// directory for each test. The database file is named deterministically.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(
		dir, "forestwallet_"+deterministicTestID(t)+".sqlite",
	)

	// File backed, created on first use, with foreign keys enabled and a
	// busy timeout so parallel subtests on one file do not fail fast.
	dsn := "file:" + dbPath +
		"?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "failed to open SQLite database")
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		require.NoError(t, err, "failed to ping SQLite database")
	}

	t.Cleanup(func() {
		err := db.Close()
		assert.NoError(t, err, "failed to close SQLite database")
	})

	return db
}
