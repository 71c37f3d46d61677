// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqltest creates isolated SQL databases for tests. SQLite is
// always available. Postgres runs in a container and is only enabled with
// the integration_test build tag.
package sqltest

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/require"
)

// DBFactory is a function type that creates a new database connection for
// testing purposes. It takes a testing.TB interface to allow for test failure
// when cannot create the database connection, add cleanup logic and create a
// unique and isolated database for each test case.
type DBFactory func(t testing.TB) *sql.DB

// Backend is a database engine tests can run against.
type Backend struct {
	// Name is used as the subtest name.
	Name string

	// Driver is the database/sql driver name.
	Driver string

	// Factory creates an isolated database.
	Factory DBFactory
}

// backends lists the engines RunDatabaseTest uses. Build tagged files add
// to it.
var backends = []Backend{
	{Name: "SQLite", Driver: "sqlite", Factory: NewSQLiteDB},
}

// DBTestFunc is a function type that defines the signature for database test
// functions that will be run against different database implementations.
type DBTestFunc func(t *testing.T, backend Backend)

// RunDatabaseTest runs the same test function against every enabled
// backend. Each backend runs as its own parallel subtest.
func RunDatabaseTest(t *testing.T, testFunc DBTestFunc) {
	t.Helper()

	for _, b := range backends {
		t.Run(b.Name, func(t *testing.T) {
			t.Parallel()
			testFunc(t, b)
		})
	}
}

// deterministicTestID generates a deterministic identifier based on the test
// name. This ensures that Golang test caching works properly by avoiding
// random generations for the database name. We need to use this hash to avoid
// long database names that can be cropped by some database systems.
func deterministicTestID(t testing.TB) string {
	t.Helper()
	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))
	require.NoError(t, err)

	hashed := fmt.Sprintf("%08x", h.Sum32())
	t.Logf("db name hash: %s", hashed)
	return hashed
}
