// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoinDecimals is the number of decimal places of one coin.
const CoinDecimals = 9

// CoinUnits is the number of base units in one coin.
const CoinUnits = 1_000_000_000

var (
	// ErrAmountSyntax is returned for an amount that is not a
	// non-negative decimal with at most CoinDecimals places.
	ErrAmountSyntax = errors.New("invalid amount")

	// ErrAmountRange is returned for an amount that does not fit in a
	// uint64 of base units.
	ErrAmountRange = errors.New("amount out of range")
)

// AmountFlag holds an amount in base units and implements the
// flags.Marshaler and Unmarshaler interfaces so it can be used as a config
// struct field.  Values are written in coins, e.g. "0.001".
type AmountFlag struct {
	Amount uint64
}

// NewAmountFlag creates an AmountFlag with a default amount in base units.
func NewAmountFlag(defaultValue uint64) *AmountFlag {
	return &AmountFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (a *AmountFlag) MarshalFlag() (string, error) {
	return FormatAmount(a.Amount), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (a *AmountFlag) UnmarshalFlag(value string) error {
	amount, err := ParseAmount(value)
	if err != nil {
		return err
	}
	a.Amount = amount
	return nil
}

// ParseAmount converts a decimal coin amount to base units without going
// through floating point.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasPoint := strings.Cut(s, ".")
	if whole == "" && (!hasPoint || frac == "") {
		return 0, fmt.Errorf("%w %q", ErrAmountSyntax, s)
	}
	if len(frac) > CoinDecimals {
		return 0, fmt.Errorf("%w %q: more than %d decimal places",
			ErrAmountSyntax, s, CoinDecimals)
	}
	if !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("%w %q", ErrAmountSyntax, s)
	}

	var coins, units uint64
	var err error
	if whole != "" {
		coins, err = strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w %q", ErrAmountRange, s)
		}
	}
	if frac != "" {
		frac += strings.Repeat("0", CoinDecimals-len(frac))
		units, err = strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w %q", ErrAmountSyntax, s)
		}
	}

	if coins > (math.MaxUint64-units)/CoinUnits {
		return 0, fmt.Errorf("%w %q", ErrAmountRange, s)
	}
	return coins*CoinUnits + units, nil
}

// FormatAmount writes base units as a decimal coin amount with trailing
// zeros removed.
func FormatAmount(v uint64) string {
	s := fmt.Sprintf("%d.%09d", v/CoinUnits, v%CoinUnits)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
