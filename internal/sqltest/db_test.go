// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqltest

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// The statements below use only the dialect shared by Postgres and SQLite:
// numbered placeholders, BYTEA columns and ON CONFLICT upserts.
const (
	createBlobsSQL = `
		CREATE TABLE IF NOT EXISTS blobs (
			id BIGINT PRIMARY KEY,
			data BYTEA NOT NULL
		)`
	upsertBlobSQL = `INSERT INTO blobs (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data`
	selectBlobSQL = `SELECT data FROM blobs WHERE id = $1`
	countBlobsSQL = `SELECT COUNT(*) FROM blobs`
)

// TestDatabaseIsolation checks that every database handed out starts empty.
func TestDatabaseIsolation(t *testing.T) {
	RunDatabaseTest(t, func(t *testing.T, backend Backend) {
		for i := range 3 {
			t.Run(fmt.Sprintf("db%d", i), func(t *testing.T) {
				t.Parallel()

				db := backend.Factory(t)
				_, err := db.Exec(createBlobsSQL)
				require.NoError(t, err)

				var count int
				require.NoError(t, db.QueryRow(countBlobsSQL).Scan(&count))
				require.Zero(t, count)

				for j := range 5 {
					_, err := db.Exec(upsertBlobSQL, j, []byte{byte(i)})
					require.NoError(t, err)
				}
				require.NoError(t, db.QueryRow(countBlobsSQL).Scan(&count))
				require.Equal(t, 5, count)
			})
		}
	})
}

// TestDatabaseUpsert checks the upsert form the wallet store relies on.
func TestDatabaseUpsert(t *testing.T) {
	RunDatabaseTest(t, func(t *testing.T, backend Backend) {
		db := backend.Factory(t)
		_, err := db.Exec(createBlobsSQL)
		require.NoError(t, err)

		_, err = db.Exec(upsertBlobSQL, 7, []byte{0x08, 0x01})
		require.NoError(t, err)
		_, err = db.Exec(upsertBlobSQL, 7, []byte{0x09, 0xff})
		require.NoError(t, err)

		var data []byte
		require.NoError(t, db.QueryRow(selectBlobSQL, 7).Scan(&data))
		require.Equal(t, []byte{0x09, 0xff}, data)

		err = db.QueryRow(selectBlobSQL, 8).Scan(&data)
		require.ErrorIs(t, err, sql.ErrNoRows)
	})
}
