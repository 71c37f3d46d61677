// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestNewSubLogger(t *testing.T) {
	t.Parallel()

	var got string
	logger := NewSubLogger("TEST", func(tag string) btclog.Logger {
		got = tag
		return btclog.Disabled
	})
	require.NotNil(t, logger)

	if Deployment == Production {
		require.Equal(t, "TEST", got)
	}
}

func TestTypeStrings(t *testing.T) {
	t.Parallel()

	require.Equal(t, "production", Production.String())
	require.Equal(t, "development", Development.String())
	require.Equal(t, "stdout", LogTypeStdOut.String())
	require.Equal(t, "unknown", LogType(9).String())
}
