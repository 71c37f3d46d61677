// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ownerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/websocket"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/wallet"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

const (
	testUser = "forest"
	testPass = "hunter2"
)

type rpcResponse struct {
	Jsonrpc string            `json:"jsonrpc"`
	Result  json.RawMessage   `json:"result"`
	Error   *btcjson.RPCError `json:"error"`
	ID      interface{}       `json:"id"`
}

// fakeOwner records the arguments of the owner methods it implements.
// Calling any other method panics.
type fakeOwner struct {
	wallet.Owner

	mu          sync.Mutex
	initArgs    *wallet.InitTxArgs
	cancelID    fn.Option[uint32]
	cancelSlate fn.Option[uuid.UUID]
	minConf     fn.Option[uint64]
	refreshes   int
	err         error
}

func (f *fakeOwner) InitSendTx(_ context.Context,
	args *wallet.InitTxArgs) (*slate.Slate, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.initArgs = args
	return nil, f.err
}

func (f *fakeOwner) CancelTx(_ context.Context, txID fn.Option[uint32],
	slateID fn.Option[uuid.UUID]) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelID, f.cancelSlate = txID, slateID
	return f.err
}

func (f *fakeOwner) RetrieveSummaryInfo(_ context.Context,
	minConf fn.Option[uint64]) (*wtxmgr.Summary, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.minConf = minConf
	return &wtxmgr.Summary{
		MinimumConfirmations: minConf.UnwrapOr(10),
		Total:                42,
	}, f.err
}

func (f *fakeOwner) UpdateConfirmations(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshes++
	return nil
}

func (f *fakeOwner) NodeHeight(context.Context) (uint64, error) {
	return 7, nil
}

func (f *fakeOwner) VerifySlateMessages(*slate.Slate) error {
	return f.err
}

type fakeForeign struct {
	wallet.Foreign
}

func (fakeForeign) CheckVersion() wallet.VersionInfo {
	return wallet.VersionInfo{
		ForeignAPIVersion:      wallet.ForeignAPIVersion,
		SupportedSlateVersions: []string{"V3", "V2"},
	}
}

func newTestServer(t *testing.T, owner wallet.Owner, foreign wallet.Foreign,
	foreignAuth bool) (*Server, *httptest.Server) {

	t.Helper()

	s := NewServer(&Options{
		Username:            testUser,
		Password:            testPass,
		ForeignAuth:         foreignAuth,
		MaxPOSTClients:      10,
		MaxWebsocketClients: 10,
	}, owner, foreign, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		// Stop first so websocket handlers return before the test
		// server waits on them.
		s.Stop()
		srv.Close()
	})
	return s, srv
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func newRequest(t *testing.T, method string, params ...interface{}) []byte {
	t.Helper()

	if params == nil {
		params = []interface{}{}
	}
	b, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	return b
}

// post sends body to path and returns the status code and, for a 200, the
// decoded response.
func post(t *testing.T, url string, auth bool, body []byte) (int,
	*rpcResponse) {

	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	if auth {
		req.SetBasicAuth(testUser, testPass)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return res.StatusCode, nil
	}
	var resp rpcResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	require.Equal(t, "2.0", resp.Jsonrpc)
	return res.StatusCode, &resp
}

// call posts body to the owner API and requires a successful response.
func call(t *testing.T, url string, body []byte) json.RawMessage {
	t.Helper()

	code, resp := post(t, url, true, body)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	return resp.Result
}

func TestThrottle(t *testing.T) {
	t.Parallel()

	const threshold = 1

	srv := httptest.NewServer(throttledFn(threshold,
		func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(20 * time.Millisecond)
		}),
	)
	defer srv.Close()

	codes := make(chan int, 2)
	for i := 0; i < cap(codes); i++ {
		go func() {
			res, err := http.Get(srv.URL)
			if err != nil {
				codes <- 0
				return
			}
			res.Body.Close()
			codes <- res.StatusCode
		}()
	}

	got := make(map[int]int, cap(codes))
	for i := 0; i < cap(codes); i++ {
		got[<-codes]++
	}
	require.Equal(t, map[int]int{200: 1, 429: 1}, got)
}

func TestAuth(t *testing.T) {
	t.Parallel()

	body := readFixture(t, "check_version.json")
	heightReq := newRequest(t, "node_height")

	testCases := []struct {
		name        string
		path        string
		foreignAuth bool
		auth        bool
		badAuth     bool
		httpMethod  string
		body        []byte
		wantStatus  int
	}{
		{
			name:       "owner without auth",
			path:       OwnerPath,
			body:       heightReq,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "owner with bad auth",
			path:       OwnerPath,
			badAuth:    true,
			body:       heightReq,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "owner with auth",
			path:       OwnerPath,
			auth:       true,
			body:       heightReq,
			wantStatus: http.StatusOK,
		},
		{
			name:       "open foreign",
			path:       ForeignPath,
			body:       body,
			wantStatus: http.StatusOK,
		},
		{
			name:        "closed foreign",
			path:        ForeignPath,
			foreignAuth: true,
			body:        body,
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name:        "closed foreign with auth",
			path:        ForeignPath,
			foreignAuth: true,
			auth:        true,
			body:        body,
			wantStatus:  http.StatusOK,
		},
		{
			name:       "get",
			path:       OwnerPath,
			auth:       true,
			httpMethod: http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, srv := newTestServer(t, &fakeOwner{}, fakeForeign{},
				tc.foreignAuth)

			method := tc.httpMethod
			if method == "" {
				method = http.MethodPost
			}
			req, err := http.NewRequest(method, srv.URL+tc.path,
				bytes.NewReader(tc.body))
			require.NoError(t, err)
			switch {
			case tc.auth:
				req.SetBasicAuth(testUser, testPass)
			case tc.badAuth:
				req.SetBasicAuth(testUser, "wrong")
			}

			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			res.Body.Close()
			require.Equal(t, tc.wantStatus, res.StatusCode)
		})
	}
}

// TestParams checks that params are accepted both by position and by name.
func TestParams(t *testing.T) {
	t.Parallel()

	slateID := uuid.MustParse("0436430c-2b02-624c-2032-570501212b00")

	testCases := []struct {
		name     string
		body     []byte
		wantCode btcjson.RPCErrorCode
		check    func(t *testing.T, f *fakeOwner, result json.RawMessage)
	}{
		{
			name: "positional cancel",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"cancel_tx","params":[3,null]}`),
			check: func(t *testing.T, f *fakeOwner, _ json.RawMessage) {
				require.Equal(t, fn.Some[uint32](3), f.cancelID)
				require.True(t, f.cancelSlate.IsNone())
			},
		},
		{
			name: "named cancel",
			body: readFixture(t, "cancel_tx.json"),
			check: func(t *testing.T, f *fakeOwner, _ json.RawMessage) {
				require.True(t, f.cancelID.IsNone())
				require.Equal(t, fn.Some(slateID), f.cancelSlate)
			},
		},
		{
			name: "positional summary",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"retrieve_summary_info",` +
				`"params":[true,"5"]}`),
			check: func(t *testing.T, f *fakeOwner,
				result json.RawMessage) {

				require.Equal(t, 1, f.refreshes)
				require.Equal(t, fn.Some[uint64](5), f.minConf)

				var res struct {
					Refreshed bool           `json:"refreshed_from_node"`
					Summary   wtxmgr.Summary `json:"summary"`
				}
				require.NoError(t, json.Unmarshal(result, &res))
				require.True(t, res.Refreshed)
				require.EqualValues(t, 5,
					res.Summary.MinimumConfirmations)
				require.EqualValues(t, 42, res.Summary.Total)
			},
		},
		{
			name: "summary without params",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"retrieve_summary_info"}`),
			check: func(t *testing.T, f *fakeOwner, _ json.RawMessage) {
				require.Zero(t, f.refreshes)
				require.True(t, f.minConf.IsNone())
			},
		},
		{
			name: "named init send",
			body: readFixture(t, "init_send_tx.json"),
			check: func(t *testing.T, f *fakeOwner, _ json.RawMessage) {
				args := f.initArgs
				require.NotNil(t, args)
				require.EqualValues(t, 6_000_000_000, args.Amount)
				require.Equal(t, fn.Some[uint64](1),
					args.MinimumConfirmations)
				require.Equal(t, 500, args.MaxOutputs)
				require.Equal(t, 1, args.NumChangeOutputs)
				require.Equal(t, fn.Some("for the firewood"),
					args.Message)
				require.True(t, args.TargetSlateVersion.IsNone())
				require.True(t, args.TTLBlocks.IsNone())
			},
		},
		{
			name: "node height",
			body: newRequest(t, "node_height"),
			check: func(t *testing.T, _ *fakeOwner,
				result json.RawMessage) {

				require.JSONEq(t, `{"height":"7"}`, string(result))
			},
		},
		{
			name: "too many params",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"cancel_tx","params":[1,null,3]}`),
			wantCode: btcjson.ErrRPCInvalidParams.Code,
		},
		{
			name: "scalar params",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"cancel_tx","params":5}`),
			wantCode: btcjson.ErrRPCInvalidParams.Code,
		},
		{
			name: "missing args",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"init_send_tx","params":[]}`),
			wantCode: btcjson.ErrRPCInvalidParameter,
		},
		{
			name: "negative count",
			body: []byte(`{"jsonrpc":"2.0","id":1,` +
				`"method":"init_send_tx","params":[{"amount":1,` +
				`"num_change_outputs":-1}]}`),
			wantCode: btcjson.ErrRPCInvalidParameter,
		},
		{
			name:     "unknown method",
			body:     newRequest(t, "getbalance"),
			wantCode: btcjson.ErrRPCMethodNotFound.Code,
		},
		{
			name:     "malformed request",
			body:     []byte(`{"jsonrpc":`),
			wantCode: btcjson.ErrRPCParse.Code,
		},
		{
			name:     "missing method",
			body:     []byte(`{"jsonrpc":"2.0","id":1}`),
			wantCode: btcjson.ErrRPCInvalidRequest.Code,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := &fakeOwner{}
			_, srv := newTestServer(t, f, fakeForeign{}, false)

			code, resp := post(t, srv.URL+OwnerPath, true, tc.body)
			require.Equal(t, http.StatusOK, code)
			if tc.wantCode != 0 {
				require.NotNil(t, resp.Error)
				require.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			require.Nil(t, resp.Error)
			require.EqualValues(t, 1, resp.ID)

			f.mu.Lock()
			defer f.mu.Unlock()
			tc.check(t, f, resp.Result)
		})
	}
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		wantCode btcjson.RPCErrorCode
		wantMsg  string
	}{
		{
			name:     "insufficient funds",
			err:      werr.New(werr.ErrInsufficientFunds, "need more", nil),
			wantCode: btcjson.ErrRPCWalletInsufficientFunds,
			wantMsg:  "InsufficientFunds: need more",
		},
		{
			name: "attributed signature",
			err: werr.ForParticipant(werr.ErrInvalidPartialSignature,
				1, "bad sig", nil),
			wantCode: btcjson.ErrRPCVerify,
			wantMsg:  "InvalidPartialSignature{id: 1}",
		},
		{
			name: "wrapped not found",
			err: fmt.Errorf("cancel: %w",
				werr.New(werr.ErrNegotiationNotFound, "", nil)),
			wantCode: btcjson.ErrRPCNoTxInfo,
			wantMsg:  "NegotiationNotFound",
		},
		{
			name: "slate version in params",
			err: ParseError{werr.New(werr.ErrSlateVersionMismatch,
				"v9", nil)},
			wantCode: btcjson.ErrRPCDeserialization,
			wantMsg:  "SlateVersionMismatch",
		},
		{
			name:     "ledger down",
			err:      werr.New(werr.ErrLedgerUnavailable, "", nil),
			wantCode: btcjson.ErrRPCClientNotConnected,
			wantMsg:  "LedgerUnavailable",
		},
		{
			name:     "store",
			err:      werr.Store("writing", errors.New("disk full")),
			wantCode: btcjson.ErrRPCDatabase,
			wantMsg:  "StoreFailure: writing: disk full",
		},
		{
			name:     "parse",
			err:      ParseError{errors.New("bad json")},
			wantCode: btcjson.ErrRPCInvalidParams.Code,
			wantMsg:  "bad json",
		},
		{
			name:     "invalid parameter",
			err:      invalidParam("missing slate"),
			wantCode: btcjson.ErrRPCInvalidParameter,
			wantMsg:  "missing slate",
		},
		{
			name:     "plain",
			err:      errors.New("boom"),
			wantCode: btcjson.ErrRPCWallet,
			wantMsg:  "boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rpcErr := jsonError(tc.err)
			require.Equal(t, tc.wantCode, rpcErr.Code)
			require.True(t, strings.HasPrefix(rpcErr.Message,
				tc.wantMsg), rpcErr.Message)
		})
	}

	require.Nil(t, jsonError(nil))
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	f := &fakeOwner{
		err: werr.New(werr.ErrInsufficientFunds, "need more", nil),
	}
	_, srv := newTestServer(t, f, fakeForeign{}, false)

	code, resp := post(t, srv.URL+OwnerPath, true,
		readFixture(t, "init_send_tx.json"))
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Error)
	require.Equal(t, btcjson.ErrRPCWalletInsufficientFunds, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "InsufficientFunds")
}

// TestForeignPath checks that owner methods are not reachable through the
// foreign endpoint.
func TestForeignPath(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeOwner{}, fakeForeign{}, false)

	code, resp := post(t, srv.URL+ForeignPath, true,
		newRequest(t, "node_height"))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, errNoOwnerAuth, resp.Error)

	code, resp = post(t, srv.URL+ForeignPath, false,
		readFixture(t, "check_version.json"))
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	var info wallet.VersionInfo
	require.NoError(t, json.Unmarshal(resp.Result, &info))
	require.EqualValues(t, wallet.ForeignAPIVersion, info.ForeignAPIVersion)
	require.Equal(t, []string{"V3", "V2"}, info.SupportedSlateVersions)
}

func TestStop(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, &fakeOwner{}, fakeForeign{}, false)

	code, resp := post(t, srv.URL+ForeignPath, false, newRequest(t, "stop"))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, btcjson.ErrRPCMethodNotFound.Code, resp.Error.Code)
	select {
	case <-s.RequestProcessShutdown():
		t.Fatal("foreign client stopped the wallet")
	default:
	}

	result := call(t, srv.URL+OwnerPath, newRequest(t, "stop"))
	require.JSONEq(t, `"forestwallet stopping."`, string(result))
	select {
	case <-s.RequestProcessShutdown():
	case <-time.After(time.Second):
		t.Fatal("no shutdown requested")
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + WebsocketPath
}

func wsCall(t *testing.T, conn *websocket.Conn, body []byte) *rpcResponse {
	t.Helper()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(msg, &resp))
	return &resp
}

func TestWebsocket(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeOwner{}, fakeForeign{}, false)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Foreign methods are open, owner methods need authentication.
	resp := wsCall(t, conn, readFixture(t, "check_version.json"))
	require.Nil(t, resp.Error)

	resp = wsCall(t, conn, newRequest(t, "node_height"))
	require.Equal(t, errNoOwnerAuth, resp.Error)

	resp = wsCall(t, conn, newRequest(t, "authenticate", testUser,
		testPass))
	require.Nil(t, resp.Error)

	resp = wsCall(t, conn, newRequest(t, "node_height"))
	require.Nil(t, resp.Error)
	require.JSONEq(t, `{"height":"7"}`, string(resp.Result))

	resp = wsCall(t, conn, []byte(`{"jsonrpc":`))
	require.Equal(t, btcjson.ErrRPCParse.Code, resp.Error.Code)
}

func TestWebsocketAuth(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeOwner{}, fakeForeign{}, true)

	header := http.Header{}
	header.Set("Authorization", string(httpBasicAuth(testUser, "wrong")))
	_, res, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// A closed foreign API disconnects unauthenticated clients on their
	// first request.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		readFixture(t, "check_version.json")))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	header.Set("Authorization", string(httpBasicAuth(testUser, testPass)))
	authed, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer authed.Close()

	resp := wsCall(t, authed, readFixture(t, "check_version.json"))
	require.Nil(t, resp.Error)
}

// TestWebsocketPipelined writes several requests before reading any reply.
// Every request is answered once, under its own id.
func TestWebsocketPipelined(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeOwner{}, fakeForeign{}, true)

	header := http.Header{}
	header.Set("Authorization", string(httpBasicAuth(testUser, testPass)))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer conn.Close()

	const n = 8
	for i := 0; i < n; i++ {
		b, err := json.Marshal(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      i,
			"method":  "node_height",
			"params":  []interface{}{},
		})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
	}

	seen := make(map[float64]bool, n)
	for i := 0; i < n; i++ {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var resp rpcResponse
		require.NoError(t, json.Unmarshal(msg, &resp))
		require.Nil(t, resp.Error)
		require.JSONEq(t, `{"height":"7"}`, string(resp.Result))

		id, ok := resp.ID.(float64)
		require.True(t, ok)
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Len(t, seen, n)
}
