// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ownerrpc

import (
	"context"
	"encoding/json"

	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/wallet"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
)

// ownerHandler serves one owner API method.
type ownerHandler func(context.Context, wallet.Owner,
	json.RawMessage) (interface{}, error)

// foreignHandler serves one foreign API method.
type foreignHandler func(context.Context, wallet.Foreign,
	json.RawMessage) (interface{}, error)

// ownerHandlers maps owner method names to their handlers.
var ownerHandlers = map[string]ownerHandler{
	"init_send_tx":          initSendTx,
	"issue_invoice_tx":      issueInvoiceTx,
	"process_invoice_tx":    processInvoiceTx,
	"tx_lock_outputs":       txLockOutputs,
	"finalize_tx":           finalizeTx,
	"post_tx":               postTx,
	"cancel_tx":             cancelTx,
	"verify_slate_messages": verifySlateMessages,
	"get_stored_tx":         getStoredTx,
	"retrieve_outputs":      retrieveOutputs,
	"retrieve_txs":          retrieveTxs,
	"retrieve_summary_info": retrieveSummaryInfo,
	"node_height":           nodeHeight,
}

// foreignHandlers maps foreign method names to their handlers.
var foreignHandlers = map[string]foreignHandler{
	"check_version":         checkVersion,
	"build_coinbase":        buildCoinbase,
	"verify_slate_messages": foreignVerifySlateMessages,
	"receive_tx":            receiveTx,
	"finalize_invoice_tx":   finalizeInvoiceTx,
}

// slateParam is the params of every method taking a lone slate.
type slateParam struct {
	Slate *slate.Slate `json:"slate"`
}

var slateParamNames = []string{"slate"}

func (p *slateParam) check() error {
	if p.Slate == nil {
		return invalidParam("missing slate")
	}
	return nil
}

func parseSlate(raw json.RawMessage) (*slate.Slate, error) {
	var p slateParam
	if err := parseParams(raw, slateParamNames, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.Slate, nil
}

// initSendTx handles an init_send_tx request.
func initSendTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Args *initTxArgs `json:"args"`
	}
	if err := parseParams(raw, []string{"args"}, &p); err != nil {
		return nil, err
	}
	if p.Args == nil {
		return nil, invalidParam("missing args")
	}
	args, err := p.Args.toWallet()
	if err != nil {
		return nil, err
	}
	return w.InitSendTx(ctx, args)
}

// issueInvoiceTx handles an issue_invoice_tx request.
func issueInvoiceTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Args *issueInvoiceTxArgs `json:"args"`
	}
	if err := parseParams(raw, []string{"args"}, &p); err != nil {
		return nil, err
	}
	if p.Args == nil {
		return nil, invalidParam("missing args")
	}
	return w.IssueInvoiceTx(ctx, p.Args.toWallet())
}

// processInvoiceTx handles a process_invoice_tx request.
func processInvoiceTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Slate *slate.Slate `json:"slate"`
		Args  *initTxArgs  `json:"args"`
	}
	err := parseParams(raw, []string{"slate", "args"}, &p)
	if err != nil {
		return nil, err
	}
	if p.Slate == nil || p.Args == nil {
		return nil, invalidParam("missing slate or args")
	}
	args, err := p.Args.toWallet()
	if err != nil {
		return nil, err
	}
	return w.ProcessInvoiceTx(ctx, p.Slate, args)
}

// txLockOutputs handles a tx_lock_outputs request.
func txLockOutputs(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Slate         *slate.Slate `json:"slate"`
		ParticipantID u64          `json:"participant_id"`
	}
	err := parseParams(raw, []string{"slate", "participant_id"}, &p)
	if err != nil {
		return nil, err
	}
	if p.Slate == nil {
		return nil, invalidParam("missing slate")
	}
	return nil, w.TxLockOutputs(ctx, p.Slate, uint64(p.ParticipantID))
}

// finalizeTx handles a finalize_tx request.
func finalizeTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	s, err := parseSlate(raw)
	if err != nil {
		return nil, err
	}
	return w.FinalizeTx(ctx, s)
}

// postTx handles a post_tx request.
func postTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Tx    *core.Transaction `json:"tx"`
		Fluff bool              `json:"fluff"`
	}
	if err := parseParams(raw, []string{"tx", "fluff"}, &p); err != nil {
		return nil, err
	}
	if p.Tx == nil {
		return nil, invalidParam("missing tx")
	}
	return nil, w.PostTx(ctx, p.Tx, p.Fluff)
}

// cancelTx handles a cancel_tx request.
func cancelTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		TxID    *uint32    `json:"tx_id"`
		SlateID *uuid.UUID `json:"tx_slate_id"`
	}
	err := parseParams(raw, []string{"tx_id", "tx_slate_id"}, &p)
	if err != nil {
		return nil, err
	}
	return nil, w.CancelTx(ctx, optionU32(p.TxID), optionUUID(p.SlateID))
}

// verifySlateMessages handles a verify_slate_messages request on the
// owner API.
func verifySlateMessages(_ context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	s, err := parseSlate(raw)
	if err != nil {
		return nil, err
	}
	return nil, w.VerifySlateMessages(s)
}

// getStoredTx handles a get_stored_tx request.  The entry may be given in
// full, as returned by retrieve_txs, but only its ids are read.
func getStoredTx(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Tx *struct {
			ID      *uint32    `json:"id"`
			SlateID *uuid.UUID `json:"tx_slate_id"`
		} `json:"tx"`
	}
	if err := parseParams(raw, []string{"tx"}, &p); err != nil {
		return nil, err
	}
	if p.Tx == nil || (p.Tx.ID == nil && p.Tx.SlateID == nil) {
		return nil, invalidParam("missing tx id")
	}

	listing, err := w.RetrieveTxs(ctx, optionU32(p.Tx.ID),
		optionUUID(p.Tx.SlateID))
	if err != nil {
		return nil, err
	}
	if len(listing.Entries) == 0 {
		return nil, nil
	}
	return w.GetStoredTx(ctx, &listing.Entries[0])
}

// refresh brings the wallet up to date with the ledger when asked to.
func refresh(ctx context.Context, w wallet.Owner, want bool) bool {
	if !want {
		return false
	}
	if err := w.UpdateConfirmations(ctx); err != nil {
		log.Warnf("Unable to refresh from node: %v", err)
		return false
	}
	return true
}

// outputsResult is the result of retrieve_outputs.
type outputsResult struct {
	Refreshed bool                  `json:"refreshed_from_node"`
	Height    uint64                `json:"height,string"`
	Outputs   []wtxmgr.OutputRecord `json:"outputs"`
}

// retrieveOutputs handles a retrieve_outputs request.
func retrieveOutputs(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		IncludeSpent    bool    `json:"include_spent"`
		RefreshFromNode bool    `json:"refresh_from_node"`
		TxID            *uint32 `json:"tx_id"`
	}
	names := []string{"include_spent", "refresh_from_node", "tx_id"}
	if err := parseParams(raw, names, &p); err != nil {
		return nil, err
	}

	refreshed := refresh(ctx, w, p.RefreshFromNode)
	listing, err := w.RetrieveOutputs(ctx, p.IncludeSpent,
		optionU32(p.TxID))
	if err != nil {
		return nil, err
	}
	return &outputsResult{
		Refreshed: refreshed,
		Height:    listing.Height,
		Outputs:   listing.Outputs,
	}, nil
}

// txsResult is the result of retrieve_txs.
type txsResult struct {
	Refreshed bool                `json:"refreshed_from_node"`
	Height    uint64              `json:"height,string"`
	Entries   []wtxmgr.TxLogEntry `json:"txs"`
}

// retrieveTxs handles a retrieve_txs request.
func retrieveTxs(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		RefreshFromNode bool       `json:"refresh_from_node"`
		TxID            *uint32    `json:"tx_id"`
		SlateID         *uuid.UUID `json:"tx_slate_id"`
	}
	names := []string{"refresh_from_node", "tx_id", "tx_slate_id"}
	if err := parseParams(raw, names, &p); err != nil {
		return nil, err
	}

	refreshed := refresh(ctx, w, p.RefreshFromNode)
	listing, err := w.RetrieveTxs(ctx, optionU32(p.TxID),
		optionUUID(p.SlateID))
	if err != nil {
		return nil, err
	}
	return &txsResult{
		Refreshed: refreshed,
		Height:    listing.Height,
		Entries:   listing.Entries,
	}, nil
}

// summaryResult is the result of retrieve_summary_info.
type summaryResult struct {
	Refreshed bool            `json:"refreshed_from_node"`
	Summary   *wtxmgr.Summary `json:"summary"`
}

// retrieveSummaryInfo handles a retrieve_summary_info request.
func retrieveSummaryInfo(ctx context.Context, w wallet.Owner,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		RefreshFromNode      bool `json:"refresh_from_node"`
		MinimumConfirmations *u64 `json:"minimum_confirmations"`
	}
	names := []string{"refresh_from_node", "minimum_confirmations"}
	if err := parseParams(raw, names, &p); err != nil {
		return nil, err
	}

	refreshed := refresh(ctx, w, p.RefreshFromNode)
	sum, err := w.RetrieveSummaryInfo(ctx,
		optionU64(p.MinimumConfirmations))
	if err != nil {
		return nil, err
	}
	return &summaryResult{Refreshed: refreshed, Summary: sum}, nil
}

// heightResult is the result of node_height.
type heightResult struct {
	Height uint64 `json:"height,string"`
}

// nodeHeight handles a node_height request.
func nodeHeight(ctx context.Context, w wallet.Owner,
	_ json.RawMessage) (interface{}, error) {

	height, err := w.NodeHeight(ctx)
	if err != nil {
		return nil, err
	}
	return &heightResult{Height: height}, nil
}

// checkVersion handles a check_version request.
func checkVersion(_ context.Context, w wallet.Foreign,
	_ json.RawMessage) (interface{}, error) {

	return w.CheckVersion(), nil
}

// buildCoinbase handles a build_coinbase request.
func buildCoinbase(ctx context.Context, w wallet.Foreign,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		BlockFees *blockFees `json:"block_fees"`
	}
	err := parseParams(raw, []string{"block_fees"}, &p)
	if err != nil {
		return nil, err
	}
	if p.BlockFees == nil {
		return nil, invalidParam("missing block_fees")
	}
	return w.BuildCoinbase(ctx, p.BlockFees.toWallet())
}

// foreignVerifySlateMessages handles a verify_slate_messages request on
// the foreign API.
func foreignVerifySlateMessages(_ context.Context, w wallet.Foreign,
	raw json.RawMessage) (interface{}, error) {

	s, err := parseSlate(raw)
	if err != nil {
		return nil, err
	}
	return nil, w.VerifySlateMessages(s)
}

// receiveTx handles a receive_tx request.  The destination account is
// accepted for compatibility and ignored; outputs always go to the wallet's
// configured account.
func receiveTx(ctx context.Context, w wallet.Foreign,
	raw json.RawMessage) (interface{}, error) {

	var p struct {
		Slate        *slate.Slate `json:"slate"`
		DestAcctName *string      `json:"dest_acct_name"`
		Message      *string      `json:"message"`
	}
	names := []string{"slate", "dest_acct_name", "message"}
	if err := parseParams(raw, names, &p); err != nil {
		return nil, err
	}
	if p.Slate == nil {
		return nil, invalidParam("missing slate")
	}
	return w.ReceiveTx(ctx, p.Slate, optionString(p.Message))
}

// finalizeInvoiceTx handles a finalize_invoice_tx request.
func finalizeInvoiceTx(ctx context.Context, w wallet.Foreign,
	raw json.RawMessage) (interface{}, error) {

	s, err := parseSlate(raw)
	if err != nil {
		return nil, err
	}
	return w.FinalizeInvoiceTx(ctx, s)
}
