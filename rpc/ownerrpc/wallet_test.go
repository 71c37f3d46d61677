// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ownerrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/forestblock/forest-wallet/chain"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/netparams"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/wallet"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

type walletServer struct {
	*wallet.Wallet
	url string
}

func newWalletServer(t *testing.T, l chain.Interface) *walletServer {
	t.Helper()

	seed, err := keychain.GenerateSeed()
	require.NoError(t, err)
	kc, err := keychain.NewExtKeychain(seed, netparams.SimNetParams.Params)
	require.NoError(t, err)

	db, err := wtxmgr.Create(filepath.Join(t.TempDir(), "wallet.db"),
		wtxmgr.DefaultDBTimeout)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	tick := ticker.NewForce(time.Hour)
	t.Cleanup(tick.Stop)

	w, err := wallet.New(&wallet.Config{
		DB:                   db,
		Keychain:             kc,
		Chain:                l,
		Params:               &netparams.SimNetParams,
		MinimumConfirmations: 1,
		RefreshTicker:        tick,
		Clock: clock.NewTestClock(
			time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		),
	})
	require.NoError(t, err)

	_, srv := newTestServer(t, w, w, false)
	return &walletServer{Wallet: w, url: srv.URL}
}

func (w *walletServer) owner(t *testing.T, body []byte) json.RawMessage {
	t.Helper()
	return call(t, w.url+OwnerPath, body)
}

func (w *walletServer) foreign(t *testing.T, body []byte) json.RawMessage {
	t.Helper()

	code, resp := post(t, w.url+ForeignPath, false, body)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	return resp.Result
}

// requireNull checks for the empty result of a method with no return value.
func requireNull(t *testing.T, result json.RawMessage) {
	t.Helper()
	require.Contains(t, []string{"", "null"}, string(result))
}

func summaryOf(t *testing.T, w *walletServer) wtxmgr.Summary {
	t.Helper()

	var res struct {
		Summary wtxmgr.Summary `json:"summary"`
	}
	result := w.owner(t, readFixture(t, "retrieve_summary_info.json"))
	require.NoError(t, json.Unmarshal(result, &res))
	return res.Summary
}

// TestSendOverRPC runs a whole send between two wallets through their APIs:
// a coinbase is built over the foreign API, the payment is negotiated with
// slates passed as JSON, and the sender posts the finalized transaction.
func TestSendOverRPC(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	params := &netparams.SimNetParams
	l := chain.NewMemLedger(params.BlockReward, params.CoinbaseMaturity)
	sender := newWalletServer(t, l)
	receiver := newWalletServer(t, l)

	// Fund the sender from a block it mines.
	var cb wallet.CbData
	result := sender.foreign(t, readFixture(t, "build_coinbase.json"))
	require.NoError(t, json.Unmarshal(result, &cb))
	_, err := l.MineBlock(ctx, chain.Reward{
		Output: cb.Output,
		Kernel: cb.Kernel,
	})
	require.NoError(t, err)
	for i := uint64(0); i < params.CoinbaseMaturity; i++ {
		_, err := l.MineBlock(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, params.BlockReward,
		summaryOf(t, sender).CurrentlySpendable)

	// Negotiate.
	sendSlate := sender.owner(t, readFixture(t, "init_send_tx.json"))
	sender.owner(t, newRequest(t, "tx_lock_outputs", sendSlate, 0))
	requireNull(t, sender.owner(t, newRequest(t, "verify_slate_messages",
		sendSlate)))

	received := receiver.foreign(t, newRequest(t, "receive_tx", sendSlate,
		nil, "thanks"))
	requireNull(t, receiver.foreign(t, newRequest(t,
		"verify_slate_messages", received)))

	finalized := sender.owner(t, newRequest(t, "finalize_tx", received))
	s, err := slate.Decode(finalized)
	require.NoError(t, err)
	require.Equal(t, slate.StateFinalized, s.State())

	// Finalizing twice is refused.
	code, resp := post(t, sender.url+OwnerPath, true,
		newRequest(t, "finalize_tx", received))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, btcjson.ErrRPCWallet, resp.Error.Code)
	require.True(t, strings.HasPrefix(resp.Error.Message, "Resubmission"))

	// The stored transaction matches the one on the slate.
	var txs txsResult
	result = sender.owner(t, newRequest(t, "retrieve_txs", false, nil,
		s.ID))
	require.NoError(t, json.Unmarshal(result, &txs))
	require.Len(t, txs.Entries, 1)
	entry := txs.Entries[0]
	require.True(t, entry.StoredTx)

	var stored core.Transaction
	result = sender.owner(t, newRequest(t, "get_stored_tx",
		map[string]interface{}{"tx_slate_id": s.ID}))
	require.NoError(t, json.Unmarshal(result, &stored))
	require.Equal(t, s.Tx.Body.Kernels[0].Excess,
		stored.Body.Kernels[0].Excess)

	sender.owner(t, newRequest(t, "post_tx", &stored, false))
	require.Len(t, l.PostedTxs(), 1)

	// Cancelling a posted send is refused.
	code, resp = post(t, sender.url+OwnerPath, true,
		newRequest(t, "cancel_tx", entry.ID, nil))
	require.Equal(t, http.StatusOK, code)
	require.True(t, strings.HasPrefix(resp.Error.Message, "AlreadyPosted"),
		resp.Error.Message)

	_, err = l.MineBlock(ctx)
	require.NoError(t, err)

	var outputs outputsResult
	result = receiver.owner(t, newRequest(t, "retrieve_outputs", false,
		true, nil))
	require.NoError(t, json.Unmarshal(result, &outputs))
	require.True(t, outputs.Refreshed)
	require.Len(t, outputs.Outputs, 1)
	require.Equal(t, wtxmgr.Unspent, outputs.Outputs[0].Status)
	require.EqualValues(t, 6_000_000_000, outputs.Outputs[0].Value)

	require.EqualValues(t, 6_000_000_000,
		summaryOf(t, receiver).CurrentlySpendable)
}
