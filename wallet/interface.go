// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Owner is the API available to the wallet's owner. It can spend funds and
// inspect every record the wallet keeps.
type Owner interface {
	// InitSendTx selects inputs for a payment, locks them and returns the
	// slate to hand to the recipient.
	InitSendTx(ctx context.Context, args *InitTxArgs) (*slate.Slate,
		error)

	// IssueInvoiceTx requests a payment, returning the slate to hand to
	// the payer.
	IssueInvoiceTx(ctx context.Context, args *IssueInvoiceTxArgs) (
		*slate.Slate, error)

	// ProcessInvoiceTx pays an invoice slate, adding inputs, change and
	// this wallet's signature.
	ProcessInvoiceTx(ctx context.Context, s *slate.Slate,
		args *InitTxArgs) (*slate.Slate, error)

	// TxLockOutputs locks the wallet owned inputs of s for its
	// negotiation.
	TxLockOutputs(ctx context.Context, s *slate.Slate,
		participantID uint64) error

	// FinalizeTx adds the final signature to s and assembles the
	// transaction.
	FinalizeTx(ctx context.Context, s *slate.Slate) (*slate.Slate, error)

	// PostTx submits a finalized transaction to the ledger.
	PostTx(ctx context.Context, tx *core.Transaction, fluff bool) error

	// CancelTx abandons a negotiation by log entry id or slate id.
	CancelTx(ctx context.Context, txID fn.Option[uint32],
		slateID fn.Option[uuid.UUID]) error

	// VerifySlateMessages checks every message signature on s.
	VerifySlateMessages(s *slate.Slate) error

	// GetStoredTx returns the finalized transaction of entry, or nil.
	GetStoredTx(ctx context.Context, entry *wtxmgr.TxLogEntry) (
		*core.Transaction, error)

	// RetrieveOutputs lists the wallet's outputs.
	RetrieveOutputs(ctx context.Context, includeSpent bool,
		txID fn.Option[uint32]) (*OutputListing, error)

	// RetrieveTxs lists transaction log entries.
	RetrieveTxs(ctx context.Context, txID fn.Option[uint32],
		slateID fn.Option[uuid.UUID]) (*TxListing, error)

	// RetrieveSummaryInfo totals the wallet's balance.
	RetrieveSummaryInfo(ctx context.Context,
		minConf fn.Option[uint64]) (*wtxmgr.Summary, error)

	// NodeHeight returns the ledger's tip height.
	NodeHeight(ctx context.Context) (uint64, error)

	// UpdateConfirmations reconciles the wallet's outputs with the
	// ledger.
	UpdateConfirmations(ctx context.Context) error
}

// Foreign is the API other wallets and miners may call.
type Foreign interface {
	// CheckVersion reports the slate versions this wallet accepts.
	CheckVersion() VersionInfo

	// BuildCoinbase creates the coinbase output and kernel for a block
	// this wallet is mining.
	BuildCoinbase(ctx context.Context, fees *BlockFees) (*CbData, error)

	// VerifySlateMessages checks every message signature on s.
	VerifySlateMessages(s *slate.Slate) error

	// ReceiveTx adds this wallet's output and signature to a send.
	ReceiveTx(ctx context.Context, s *slate.Slate,
		message fn.Option[string]) (*slate.Slate, error)

	// FinalizeInvoiceTx completes an invoice this wallet issued.
	FinalizeInvoiceTx(ctx context.Context, s *slate.Slate) (*slate.Slate,
		error)
}

// A compile time check to ensure that Wallet implements the interfaces.
var (
	_ Owner   = (*Wallet)(nil)
	_ Foreign = (*Wallet)(nil)
)

// InitTxArgs parameterizes coin selection for a send or an invoice
// payment.
type InitTxArgs struct {
	// Amount is the value to pay, excluding fee.
	Amount uint64

	// MinimumConfirmations overrides the wallet default.
	MinimumConfirmations fn.Option[uint64]

	// MaxOutputs caps the number of inputs selected. Zero means the
	// default.
	MaxOutputs int

	// NumChangeOutputs is the number of outputs the change is split
	// over. Zero means one.
	NumChangeOutputs int

	// SelectionStrategyIsUseAll spends every eligible output instead of
	// the smallest set covering the amount.
	SelectionStrategyIsUseAll bool

	// Message is signed and attached to this wallet's entry.
	Message fn.Option[string]

	// TargetSlateVersion is the version the slate will be serialized at.
	TargetSlateVersion fn.Option[uint16]

	// TTLBlocks sets the slate's expiry relative to the current height.
	TTLBlocks fn.Option[uint64]

	// NumParticipants is the number of parties that will sign. Zero
	// means two.
	NumParticipants int
}

// IssueInvoiceTxArgs parameterizes an invoice.
type IssueInvoiceTxArgs struct {
	// Amount is the value requested.
	Amount uint64

	// Message is signed and attached to this wallet's entry.
	Message fn.Option[string]

	// TargetSlateVersion is the version the slate will be serialized at.
	TargetSlateVersion fn.Option[uint16]
}

// BlockFees describes the block a coinbase is being built for.
type BlockFees struct {
	Fees   uint64
	Height uint64
	KeyID  fn.Option[keychain.Identifier]
}

// CbData is a coinbase output and kernel ready to be placed in a block.
type CbData struct {
	Output core.Output         `json:"output"`
	Kernel core.TxKernel       `json:"kernel"`
	KeyID  keychain.Identifier `json:"key_id"`
}

// VersionInfo describes the foreign API and the slate versions it accepts.
type VersionInfo struct {
	ForeignAPIVersion      uint16   `json:"foreign_api_version"`
	SupportedSlateVersions []string `json:"supported_slate_versions"`
}

// OutputListing is the result of RetrieveOutputs.
type OutputListing struct {
	// Height is the ledger height the listing was taken at.
	Height  uint64                `json:"height,string"`
	Outputs []wtxmgr.OutputRecord `json:"outputs"`
}

// TxListing is the result of RetrieveTxs.
type TxListing struct {
	Height  uint64              `json:"height,string"`
	Entries []wtxmgr.TxLogEntry `json:"entries"`
}
