// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math"
	"testing"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/stretchr/testify/require"
)

func records(values ...uint64) []wtxmgr.OutputRecord {
	outputs := make([]wtxmgr.OutputRecord, 0, len(values))
	for i, v := range values {
		outputs = append(outputs, wtxmgr.OutputRecord{
			Commit: commit.CommitValue(uint64(i) + 1),
			Value:  v,
			Status: wtxmgr.Unspent,
		})
	}
	return outputs
}

func values(outputs []wtxmgr.OutputRecord) []uint64 {
	vs := make([]uint64, 0, len(outputs))
	for i := range outputs {
		vs = append(vs, outputs[i].Value)
	}
	return vs
}

func TestSelectCoins(t *testing.T) {
	t.Parallel()

	const base = DefaultBaseFee

	testCases := []struct {
		name       string
		eligible   []wtxmgr.OutputRecord
		amount     uint64
		policy     selectionPolicy
		wantInputs []uint64
		wantFee    uint64
		wantChange []uint64
	}{
		{
			name:       "single input",
			eligible:   records(60_000_000_000),
			amount:     6_000_000_000,
			policy:     selectionPolicy{baseFee: base},
			wantInputs: []uint64{60_000_000_000},
			wantFee:    8_000_000,
			wantChange: []uint64{53_992_000_000},
		},
		{
			name: "smallest first",
			eligible: records(
				20_000_000_000, 1_000_000_000, 5_000_000_000,
				2_000_000_000,
			),
			amount:     2_500_000_000,
			policy:     selectionPolicy{baseFee: base},
			wantInputs: []uint64{1_000_000_000, 2_000_000_000},
			wantFee:    7_000_000,
			wantChange: []uint64{493_000_000},
		},
		{
			name:       "exact match drops change",
			eligible:   records(1_004_000_000),
			amount:     1_000_000_000,
			policy:     selectionPolicy{baseFee: base},
			wantInputs: []uint64{1_004_000_000},
			wantFee:    4_000_000,
		},
		{
			name: "use all",
			eligible: records(
				1_000_000_000, 2_000_000_000, 3_000_000_000,
			),
			amount: 1_000_000_000,
			policy: selectionPolicy{baseFee: base, useAll: true},
			wantInputs: []uint64{
				1_000_000_000, 2_000_000_000, 3_000_000_000,
			},
			wantFee:    6_000_000,
			wantChange: []uint64{4_994_000_000},
		},
		{
			name: "max outputs window",
			eligible: records(
				1_000_000_000, 1_000_000_000, 1_000_000_000,
				1_000_000_000, 10_000_000_000,
			),
			amount:     3_000_000_000,
			policy:     selectionPolicy{baseFee: base, maxOutputs: 2},
			wantInputs: []uint64{1_000_000_000, 10_000_000_000},
			wantFee:    7_000_000,
			wantChange: []uint64{7_993_000_000},
		},
		{
			name:       "split change",
			eligible:   records(10_000_000_000),
			amount:     1_000_000_000,
			policy:     selectionPolicy{baseFee: base, numChange: 3},
			wantInputs: []uint64{10_000_000_000},
			wantFee:    16_000_000,
			wantChange: []uint64{
				2_994_666_666, 2_994_666_666, 2_994_666_668,
			},
		},
		{
			name:       "two recipients",
			eligible:   records(10_000_000_000),
			amount:     6_000_000_000,
			policy:     selectionPolicy{baseFee: base, recipients: 2},
			wantInputs: []uint64{10_000_000_000},
			wantFee:    12_000_000,
			wantChange: []uint64{3_988_000_000},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sel, err := selectCoins(tc.eligible, tc.amount, tc.policy)
			require.NoError(t, err)
			require.Equal(t, tc.wantInputs, values(sel.inputs))
			require.Equal(t, tc.wantFee, sel.fee)
			require.Equal(t, tc.wantChange, sel.change)
			require.Equal(t, sel.total(),
				tc.amount+sel.fee+sumChange(sel.change))
		})
	}
}

func sumChange(change []uint64) uint64 {
	var total uint64
	for _, v := range change {
		total += v
	}
	return total
}

func TestSelectCoinsInsufficient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		eligible []wtxmgr.OutputRecord
		amount   uint64
		policy   selectionPolicy
	}{
		{
			name:   "no outputs",
			amount: 1,
			policy: selectionPolicy{baseFee: DefaultBaseFee},
		},
		{
			name:     "fee not covered",
			eligible: records(1_000_000_000),
			amount:   1_000_000_000,
			policy:   selectionPolicy{baseFee: DefaultBaseFee},
		},
		{
			name:     "amount wraps with fee",
			eligible: records(60_000_000_000),
			amount:   math.MaxUint64 - 1,
			policy:   selectionPolicy{baseFee: DefaultBaseFee},
		},
		{
			name:     "amount at range limit",
			eligible: records(60_000_000_000),
			amount: math.MaxUint64 -
				core.TxFee(1, 1, 1, DefaultBaseFee),
			policy: selectionPolicy{baseFee: DefaultBaseFee},
		},
		{
			name: "values saturate",
			eligible: records(
				math.MaxUint64, 1_000_000_000,
			),
			amount: 1_000_000_000,
			policy: selectionPolicy{baseFee: DefaultBaseFee},
		},
		{
			name: "window too small",
			eligible: records(
				1_000_000_000, 1_000_000_000, 1_000_000_000,
			),
			amount: 2_500_000_000,
			policy: selectionPolicy{
				baseFee:    DefaultBaseFee,
				maxOutputs: 2,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := selectCoins(tc.eligible, tc.amount, tc.policy)
			require.ErrorIs(t, err, werr.ErrInsufficientFunds)
		})
	}
}

func TestSplitChange(t *testing.T) {
	t.Parallel()

	require.Nil(t, splitChange(0, 2))
	require.Equal(t, []uint64{3, 3, 4}, splitChange(10, 3))
	require.Equal(t, []uint64{2}, splitChange(2, 3))
	require.Equal(t, []uint64{7}, splitChange(7, 0))
}
