// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/forestblock/forest-wallet/chain"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     interface{}       `json:"id"`
}

// fakeNode answers ledger requests by delegating to a MemLedger, recording
// every request it sees.
type fakeNode struct {
	t      *testing.T
	ledger *chain.MemLedger

	mtx      sync.Mutex
	requests []rpcRequest
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "user" || pass != "pass" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mtx.Lock()
	n.requests = append(n.requests, req)
	n.mtx.Unlock()

	ctx := r.Context()
	var (
		result interface{}
		err    error
	)
	switch req.Method {
	case "get_tip":
		var h uint64
		h, err = n.ledger.Height(ctx)
		result = chain.Tip{Height: h}

	case "get_outputs":
		var commits []commit.Commitment
		require.NoError(n.t, json.Unmarshal(req.Params[0], &commits))
		result, err = n.ledger.GetOutputs(ctx, commits)

	case "push_transaction":
		var (
			tx    core.Transaction
			fluff bool
		)
		require.NoError(n.t, json.Unmarshal(req.Params[0], &tx))
		require.NoError(n.t, json.Unmarshal(req.Params[1], &fluff))
		err = n.ledger.PostTx(ctx, &tx, fluff)

	default:
		err = &btcjson.RPCError{
			Code:    btcjson.ErrRPCMethodNotFound.Code,
			Message: "method not found",
		}
	}

	var rpcErr *btcjson.RPCError
	if err != nil {
		rpcErr = &btcjson.RPCError{
			Code:    btcjson.ErrRPCMisc,
			Message: err.Error(),
		}
		result = nil
	}
	resp, err := btcjson.MarshalResponse(btcjson.RpcVersion1, req.ID,
		result, rpcErr)
	require.NoError(n.t, err)
	_, _ = w.Write(resp)
}

func newTestClient(t *testing.T, h http.Handler) *chain.RPCClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := chain.NewRPCClient(&chain.RPCConfig{
		Host:       strings.TrimPrefix(srv.URL, "http://"),
		User:       "user",
		Pass:       "pass",
		DisableTLS: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Stop)
	return client
}

func TestRPCClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := chain.NewMemLedger(testReward, 0)
	reward, b := newReward(t, testReward)
	_, err := ledger.MineBlock(ctx, reward)
	require.NoError(t, err)

	node := &fakeNode{t: t, ledger: ledger}
	client := newTestClient(t, node)
	require.Equal(t, "rpc", client.BackEnd())

	height, err := client.Height(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, height)

	outs, err := client.GetOutputs(ctx, []commit.Commitment{
		reward.Output.Commit, commit.CommitValue(1),
	})
	require.NoError(t, err)
	require.Equal(t, []chain.OutputInfo{{
		Commit: reward.Output.Commit, Height: 1,
	}}, outs)

	// No request is made for an empty query.
	outs, err = client.GetOutputs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, outs)

	tx := spend(t, reward.Output.Commit, b, testReward)
	require.NoError(t, client.PostTx(ctx, tx, false))

	posted := ledger.PostedTxs()
	require.Len(t, posted, 1)
	require.Equal(t, tx.Hash(), posted[0].Tx.Hash())
	require.False(t, posted[0].Fluff)

	// The node now refuses the double spend.
	err = client.PostTx(ctx, tx, true)
	require.ErrorIs(t, err, werr.ErrInvalidTransaction)

	node.mtx.Lock()
	defer node.mtx.Unlock()
	methods := make([]string, 0, len(node.requests))
	for _, r := range node.requests {
		// rpcclient numbers its requests, and the reply echoes the id.
		require.IsType(t, float64(0), r.ID)
		methods = append(methods, r.Method)
	}
	require.Equal(t, []string{
		"get_tip", "get_outputs", "push_transaction",
		"push_transaction",
	}, methods)
}

func TestRPCClientUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded",
					http.StatusServiceUnavailable)
			},
		},
		{
			name: "garbage reply",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(
					`{"result":{"height":"tall"},"error":null,"id":1}`,
				))
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, test.handler)
			_, err := client.Height(context.Background())
			require.ErrorIs(t, err, werr.ErrLedgerUnavailable)
		})
	}
}

func TestRPCClientContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			<-release
		},
	))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Height(ctx)
	require.ErrorIs(t, err, werr.ErrLedgerUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}
