// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math"
	"math/bits"
	"sort"

	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
)

// selectionPolicy bounds a coin selection.
type selectionPolicy struct {
	// recipients is the number of outputs the transaction carries
	// besides the change.
	recipients int

	baseFee    uint64
	maxOutputs int
	numChange  int
	useAll     bool
}

// selection is the result of choosing inputs for a payment.
type selection struct {
	inputs []wtxmgr.OutputRecord
	fee    uint64
	change []uint64
}

// total returns the value of the selected inputs.
func (s *selection) total() uint64 {
	return sumValues(s.inputs)
}

// sumValues totals the outputs, saturating at math.MaxUint64.
func sumValues(outputs []wtxmgr.OutputRecord) uint64 {
	var total uint64
	for i := range outputs {
		total = addValues(total, outputs[i].Value)
	}
	return total
}

// addValues returns a+b, saturating at math.MaxUint64.
func addValues(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// selectCoins chooses inputs from eligible covering amount plus the fee of
// the resulting transaction, which carries the recipients' outputs, the
// change and a single kernel. The fee depends on the number of inputs, so
// selection is repeated until the input set covers the fee it implies.
func selectCoins(eligible []wtxmgr.OutputRecord, amount uint64,
	policy selectionPolicy) (*selection, error) {

	candidates := make([]wtxmgr.OutputRecord, len(eligible))
	copy(candidates, eligible)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Value < candidates[j].Value
	})

	available := sumValues(candidates)
	numChange := policy.numChange
	if numChange < 1 {
		numChange = 1
	}
	recipients := policy.recipients
	if recipients < 1 {
		recipients = 1
	}
	maxOutputs := policy.maxOutputs
	if maxOutputs < 1 {
		maxOutputs = DefaultMaxOutputs
	}

	insufficient := func(needed uint64) error {
		return werr.Newf(werr.ErrInsufficientFunds,
			"available %d, needed %d", available, needed)
	}

	// target is amount plus fee. A sum that does not fit a uint64 can
	// never be covered.
	target := func(fee uint64) (uint64, error) {
		sum, carry := bits.Add64(amount, fee, 0)
		if carry != 0 || available == math.MaxUint64 {
			return 0, werr.Newf(werr.ErrInsufficientFunds,
				"amount %d plus fee %d is out of range", amount,
				fee)
		}
		return sum, nil
	}

	minFee := core.TxFee(1, recipients, 1, policy.baseFee)
	need, err := target(minFee)
	if err != nil {
		return nil, err
	}
	if available < need {
		return nil, insufficient(need)
	}
	fee := core.TxFee(1, numChange+recipients, 1, policy.baseFee)

	pick := func(want uint64) []wtxmgr.OutputRecord {
		if policy.useAll {
			return candidates
		}
		return selectSmallestFirst(candidates, want, maxOutputs)
	}

	if need, err = target(fee); err != nil {
		return nil, err
	}
	coins := pick(need)
	for {
		total := sumValues(coins)
		fee = core.TxFee(len(coins), numChange+recipients, 1,
			policy.baseFee)
		if need, err = target(fee); err != nil {
			return nil, err
		}
		if total >= need {
			break
		}

		// An exact match needs no change output, which lowers the
		// fee.
		noChangeFee := core.TxFee(len(coins), recipients, 1,
			policy.baseFee)
		if total == amount+noChangeFee {
			fee = noChangeFee
			need = total
			break
		}

		next := pick(need)
		if len(next) <= len(coins) && sumValues(next) <= total {
			return nil, insufficient(need)
		}
		coins = next
	}

	sel := &selection{
		inputs: coins,
		fee:    fee,
	}
	sel.change = splitChange(sel.total()-need, numChange)
	return sel, nil
}

// selectSmallestFirst takes outputs in ascending value order until target
// is covered. When that needs more than maxOutputs, it instead slides a
// window of maxOutputs outputs up the sorted list and takes the first
// window that covers target, or the largest window if none does.
func selectSmallestFirst(sorted []wtxmgr.OutputRecord, target uint64,
	maxOutputs int) []wtxmgr.OutputRecord {

	var total uint64
	for i := range sorted {
		total = addValues(total, sorted[i].Value)
		if total >= target {
			if i+1 <= maxOutputs {
				return sorted[:i+1]
			}
			break
		}
	}
	if len(sorted) <= maxOutputs {
		return sorted
	}

	for start := 0; start+maxOutputs <= len(sorted); start++ {
		window := sorted[start : start+maxOutputs]
		if sumValues(window) >= target {
			return window
		}
	}
	return sorted[len(sorted)-maxOutputs:]
}

// splitChange divides change over n outputs, the last taking the
// remainder. No outputs are returned for zero change, and a change too
// small to split goes to a single output.
func splitChange(change uint64, n int) []uint64 {
	if change == 0 {
		return nil
	}
	if n < 1 || change < uint64(n) {
		n = 1
	}
	part := change / uint64(n)
	values := make([]uint64, n)
	for i := range values {
		values[i] = part
	}
	values[n-1] = change - part*uint64(n-1)
	return values
}
