// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sync"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
)

// Reward is the coinbase a miner includes in a block: a single coinbase
// output and the kernel proving it commits to exactly the block reward plus
// fees.
type Reward struct {
	Output core.Output
	Kernel core.TxKernel
}

// Posted records a transaction accepted into the mempool.
type Posted struct {
	Tx    *core.Transaction
	Fluff bool
}

type utxo struct {
	height     uint64
	isCoinbase bool
}

// MemLedger is an in-process ledger that fully validates the transactions
// posted to it. Accepted transactions wait in a mempool until MineBlock
// applies them.
type MemLedger struct {
	mtx sync.Mutex

	reward   uint64
	maturity uint64

	height  uint64
	utxos   map[commit.Commitment]utxo
	kernels map[commit.Commitment]struct{}
	mempool []Posted
	posted  []Posted
	offline error
}

// A compile-time check to ensure that MemLedger satisfies the Interface.
var _ Interface = (*MemLedger)(nil)

// NewMemLedger returns an empty ledger at height zero. reward is the value
// a coinbase may create and maturity the number of blocks a coinbase output
// must wait before it can be spent.
func NewMemLedger(reward, maturity uint64) *MemLedger {
	return &MemLedger{
		reward:   reward,
		maturity: maturity,
		utxos:    make(map[commit.Commitment]utxo),
		kernels:  make(map[commit.Commitment]struct{}),
	}
}

// BackEnd returns the name of the driver.
func (l *MemLedger) BackEnd() string {
	return "memory"
}

// SetOffline makes every call fail with ErrLedgerUnavailable wrapping err
// until it is called again with nil.
func (l *MemLedger) SetOffline(err error) {
	l.mtx.Lock()
	l.offline = err
	l.mtx.Unlock()
}

// Height returns the height of the last mined block.
func (l *MemLedger) Height(ctx context.Context) (uint64, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if err := l.available(ctx, "height"); err != nil {
		return 0, err
	}
	return l.height, nil
}

// GetOutputs returns the unspent subset of commits.
func (l *MemLedger) GetOutputs(ctx context.Context,
	commits []commit.Commitment) ([]OutputInfo, error) {

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if err := l.available(ctx, "get outputs"); err != nil {
		return nil, err
	}
	var outputs []OutputInfo
	for _, c := range commits {
		if u, ok := l.utxos[c]; ok {
			outputs = append(outputs, OutputInfo{
				Commit: c,
				Height: u.height,
			})
		}
	}
	return outputs, nil
}

// PostTx validates tx against the consensus rules and the current UTXO set
// and adds it to the mempool.
func (l *MemLedger) PostTx(ctx context.Context, tx *core.Transaction,
	fluff bool) error {

	if err := tx.Validate(ctx); err != nil {
		return err
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if err := l.available(ctx, "post transaction"); err != nil {
		return err
	}

	spent := l.mempoolSpends()
	for _, in := range tx.Body.Inputs {
		u, ok := l.utxos[in.Commit]
		if !ok {
			return werr.Newf(werr.ErrInvalidTransaction,
				"input %v is not unspent", in.Commit)
		}
		if _, ok := spent[in.Commit]; ok {
			return werr.Newf(werr.ErrInvalidTransaction,
				"input %v already spent in mempool", in.Commit)
		}
		if u.isCoinbase && l.height+1 < u.height+l.maturity {
			return werr.Newf(werr.ErrInvalidTransaction,
				"coinbase %v immature", in.Commit)
		}
	}
	for _, out := range tx.Body.Outputs {
		if _, ok := l.utxos[out.Commit]; ok {
			return werr.Newf(werr.ErrInvalidTransaction,
				"output %v already exists", out.Commit)
		}
	}
	for _, k := range tx.Body.Kernels {
		if _, ok := l.kernels[k.Excess]; ok {
			return werr.Newf(werr.ErrInvalidTransaction,
				"kernel %v already on chain", k.Excess)
		}
		if k.LockHeight > l.height+1 {
			return werr.Newf(werr.ErrInvalidTransaction,
				"kernel locked until height %d", k.LockHeight)
		}
	}

	p := Posted{Tx: tx.Copy(), Fluff: fluff}
	l.mempool = append(l.mempool, p)
	l.posted = append(l.posted, p)

	log.Debugf("Accepted transaction %v into mempool (%d pending)",
		tx.Hash(), len(l.mempool))

	return nil
}

// MineBlock validates the given rewards, applies every mempool transaction
// and advances the height by one. Rewards may claim the mempool fees.
func (l *MemLedger) MineBlock(ctx context.Context,
	rewards ...Reward) (uint64, error) {

	l.mtx.Lock()
	defer l.mtx.Unlock()

	var fees uint64
	for _, p := range l.mempool {
		fees += p.Tx.Fee()
	}

	if len(rewards) > 1 {
		return 0, werr.New(werr.ErrInvalidArgument,
			"at most one coinbase per block", nil)
	}
	for _, r := range rewards {
		if err := verifyReward(ctx, r, l.reward+fees); err != nil {
			return 0, err
		}
	}

	height := l.height + 1
	for _, p := range l.mempool {
		for _, in := range p.Tx.Body.Inputs {
			delete(l.utxos, in.Commit)
		}
		for _, out := range p.Tx.Body.Outputs {
			l.utxos[out.Commit] = utxo{height: height}
		}
		for _, k := range p.Tx.Body.Kernels {
			l.kernels[k.Excess] = struct{}{}
		}
	}
	for _, r := range rewards {
		l.utxos[r.Output.Commit] = utxo{height: height, isCoinbase: true}
		l.kernels[r.Kernel.Excess] = struct{}{}
	}

	log.Infof("Mined block %d with %d transactions", height,
		len(l.mempool))

	l.mempool = nil
	l.height = height
	return height, nil
}

// PostedTxs returns every transaction accepted so far, in order.
func (l *MemLedger) PostedTxs() []Posted {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	return append([]Posted(nil), l.posted...)
}

func (l *MemLedger) available(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return werr.New(werr.ErrLedgerUnavailable, op, err)
	}
	if l.offline != nil {
		return werr.New(werr.ErrLedgerUnavailable, op, l.offline)
	}
	return nil
}

func (l *MemLedger) mempoolSpends() map[commit.Commitment]struct{} {
	spent := make(map[commit.Commitment]struct{})
	for _, p := range l.mempool {
		for _, in := range p.Tx.Body.Inputs {
			spent[in.Commit] = struct{}{}
		}
	}
	return spent
}

// verifyReward checks a coinbase the way a block would: the output must be
// a coinbase with a valid range proof, and its kernel must be a signed
// coinbase kernel balancing the output against value.
func verifyReward(ctx context.Context, r Reward, value uint64) error {
	if r.Output.Features != core.OutputCoinbase ||
		r.Kernel.Features != core.KernelCoinbase {

		return werr.New(werr.ErrInvalidTransaction,
			"reward is not a coinbase", nil)
	}
	tx := &core.Transaction{
		Body: core.TxBody{
			Outputs: []core.Output{r.Output},
			Kernels: []core.TxKernel{r.Kernel},
		},
	}
	if err := tx.VerifyKernelSignatures(); err != nil {
		return err
	}
	if err := tx.VerifyRangeProofs(ctx); err != nil {
		return err
	}
	return tx.VerifyKernelSums(-int64(value))
}
