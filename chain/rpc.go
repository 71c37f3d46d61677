// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/davecgh/go-spew/spew"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
)

// Ledger node methods.
const (
	methodGetTip          = "get_tip"
	methodPushTransaction = "push_transaction"
	methodGetOutputs      = "get_outputs"
)

// RPCConfig describes how to reach a ledger node's JSON-RPC API.
type RPCConfig struct {
	Host         string
	User         string
	Pass         string
	DisableTLS   bool
	Certificates []byte
}

// RPCClient talks to a ledger node over JSON-RPC HTTP POST requests.
type RPCClient struct {
	client     *rpcclient.Client
	connConfig *rpcclient.ConnConfig
}

// A compile-time check to ensure that RPCClient satisfies the Interface.
var _ Interface = (*RPCClient)(nil)

// NewRPCClient creates a client for the node described by cfg. No
// connection is held between calls.
func NewRPCClient(cfg *RPCConfig) (*RPCClient, error) {
	connConfig := &rpcclient.ConnConfig{
		Host:                cfg.Host,
		User:                cfg.User,
		Pass:                cfg.Pass,
		DisableConnectOnNew: true,
		DisableTLS:          cfg.DisableTLS,
		Certificates:        cfg.Certificates,
		HTTPPostMode:        true,
	}
	client, err := rpcclient.New(connConfig, nil)
	if err != nil {
		return nil, err
	}
	return &RPCClient{client: client, connConfig: connConfig}, nil
}

// BackEnd returns the name of the driver.
func (c *RPCClient) BackEnd() string {
	return "rpc"
}

// Stop shuts down the underlying client and waits for pending requests to
// be abandoned.
func (c *RPCClient) Stop() {
	c.client.Shutdown()
	c.client.WaitForShutdown()
}

// Height returns the height of the node's chain tip.
func (c *RPCClient) Height(ctx context.Context) (uint64, error) {
	var tip Tip
	if err := c.call(ctx, methodGetTip, &tip); err != nil {
		return 0, err
	}
	return tip.Height, nil
}

// PostTx pushes tx to the node. A node that answers with a JSON-RPC error
// has refused the transaction.
func (c *RPCClient) PostTx(ctx context.Context, tx *core.Transaction,
	fluff bool) error {

	log.Debugf("Posting transaction %v to %s (fluff=%v)", tx.Hash(),
		c.connConfig.Host, fluff)
	log.Tracef("Posted transaction: %v", NewLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	err := c.call(ctx, methodPushTransaction, nil, tx, fluff)
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return werr.New(werr.ErrInvalidTransaction,
			"ledger refused transaction", rpcErr)
	}
	return err
}

// GetOutputs returns which of commits the node reports as unspent.
func (c *RPCClient) GetOutputs(ctx context.Context,
	commits []commit.Commitment) ([]OutputInfo, error) {

	if len(commits) == 0 {
		return nil, nil
	}
	var outputs []OutputInfo
	if err := c.call(ctx, methodGetOutputs, &outputs, commits); err != nil {
		return nil, err
	}
	return outputs, nil
}

// call issues a single request and decodes its result into result, which
// may be nil. The underlying client has no notion of a context, so the
// request is abandoned rather than cancelled when ctx is done.
func (c *RPCClient) call(ctx context.Context, method string,
	result interface{}, params ...interface{}) error {

	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		rawParams = append(rawParams, b)
	}

	type reply struct {
		result json.RawMessage
		err    error
	}
	replies := make(chan reply, 1)
	go func() {
		res, err := c.client.RawRequest(method, rawParams)
		replies <- reply{res, err}
	}()

	var r reply
	select {
	case r = <-replies:
	case <-ctx.Done():
		return werr.New(werr.ErrLedgerUnavailable, method, ctx.Err())
	}

	var rpcErr *btcjson.RPCError
	switch {
	case errors.As(r.err, &rpcErr):
		return werr.New(werr.ErrLedgerUnavailable, method, rpcErr)
	case r.err != nil:
		return werr.New(werr.ErrLedgerUnavailable, method, r.err)
	}

	if result == nil || len(r.result) == 0 || string(r.result) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.result, result); err != nil {
		return werr.New(werr.ErrLedgerUnavailable,
			fmt.Sprintf("decode %s reply", method), err)
	}
	return nil
}
