// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want uint64
		err  error
	}{
		{name: "whole", in: "6", want: 6_000_000_000},
		{name: "fraction", in: "0.008", want: 8_000_000},
		{name: "leading point", in: ".001", want: 1_000_000},
		{name: "trailing point", in: "2.", want: 2_000_000_000},
		{name: "one unit", in: "0.000000001", want: 1},
		{name: "spaces", in: " 1.5 ", want: 1_500_000_000},
		{name: "max", in: "18446744073.709551615", want: 1<<64 - 1},
		{name: "empty", in: "", err: ErrAmountSyntax},
		{name: "point", in: ".", err: ErrAmountSyntax},
		{name: "negative", in: "-1", err: ErrAmountSyntax},
		{name: "exponent", in: "1e9", err: ErrAmountSyntax},
		{name: "too precise", in: "0.0000000001", err: ErrAmountSyntax},
		{name: "overflow", in: "18446744073.709551616", err: ErrAmountRange},
		{name: "huge", in: "99999999999999999999", err: ErrAmountRange},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAmount(test.in)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

func TestAmountFlag(t *testing.T) {
	t.Parallel()

	f := NewAmountFlag(1_000_000)
	s, err := f.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "0.001", s)

	require.NoError(t, f.UnmarshalFlag("60"))
	require.EqualValues(t, 60_000_000_000, f.Amount)
	s, err = f.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "60", s)

	require.Error(t, f.UnmarshalFlag("abc"))
	require.EqualValues(t, 60_000_000_000, f.Amount)
}

func TestNormalizeAddresses(t *testing.T) {
	t.Parallel()

	got, err := NormalizeAddresses([]string{
		"localhost", "localhost:3415", "127.0.0.1:8080", "::1",
	}, "3415")
	require.NoError(t, err)
	require.Equal(t, []string{
		"localhost:3415", "127.0.0.1:8080", "[::1]:3415",
	}, got)
}

func TestExplicitString(t *testing.T) {
	t.Parallel()

	s := NewExplicitString("default")
	require.False(t, s.ExplicitlySet())

	require.NoError(t, s.UnmarshalFlag("default"))
	require.True(t, s.ExplicitlySet())
	v, err := s.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "default", v)
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	ok, err := FileExists(t.TempDir())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = FileExists(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.False(t, ok)
}
