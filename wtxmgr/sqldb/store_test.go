// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

import (
	"context"
	"testing"

	"github.com/forestblock/forest-wallet/internal/sqltest"
	"github.com/forestblock/forest-wallet/internal/storetest"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/stretchr/testify/require"
)

// TestStoreContract runs the shared store behavior against every enabled
// SQL backend.
func TestStoreContract(t *testing.T) {
	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend) {
		storetest.Run(t, func(t *testing.T) wtxmgr.DB {
			s, err := New(context.Background(), backend.Factory(t))
			require.NoError(t, err)
			return s
		})
	})
}

// TestSchemaIdempotent opens the same database twice.
func TestSchemaIdempotent(t *testing.T) {
	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend) {
		db := backend.Factory(t)

		_, err := New(context.Background(), db)
		require.NoError(t, err)
		_, err = New(context.Background(), db)
		require.NoError(t, err)
	})
}
