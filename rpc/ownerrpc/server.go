// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ownerrpc serves the wallet's owner and foreign APIs as JSON-RPC
// 2.0 over HTTP POST and websockets.
package ownerrpc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/websocket"
	"github.com/forestblock/forest-wallet/wallet"
)

const (
	// OwnerPath is the HTTP path of the owner API.
	OwnerPath = "/v2/owner"

	// ForeignPath is the HTTP path of the foreign API.
	ForeignPath = "/v2/foreign"

	// WebsocketPath is the path websocket clients connect to.  Both APIs
	// are served over it.
	WebsocketPath = "/ws"
)

// maxRequestSize specifies the maximum number of bytes in the request body
// that may be read from a client.  This is currently limited to 4MB.
const maxRequestSize = 1024 * 1024 * 4

type websocketClient struct {
	conn          *websocket.Conn
	authenticated bool
	remoteAddr    string
	allRequests   chan []byte
	responses     chan []byte
	quit          chan struct{} // closed on disconnect
	wg            sync.WaitGroup
}

func newWebsocketClient(c *websocket.Conn, authenticated bool,
	remoteAddr string) *websocketClient {

	return &websocketClient{
		conn:          c,
		authenticated: authenticated,
		remoteAddr:    remoteAddr,
		allRequests:   make(chan []byte),
		responses:     make(chan []byte),
		quit:          make(chan struct{}),
	}
}

func (c *websocketClient) send(b []byte) error {
	select {
	case c.responses <- b:
		return nil
	case <-c.quit:
		return errors.New("websocket client disconnected")
	}
}

// Server serves the owner and foreign APIs of one wallet.
type Server struct {
	httpServer http.Server
	owner      wallet.Owner
	foreign    wallet.Foreign

	listeners   []net.Listener
	authsha     [sha256.Size]byte
	foreignAuth bool
	upgrader    websocket.Upgrader

	maxPostClients      int64 // Max concurrent HTTP POST clients.
	maxWebsocketClients int64 // Max concurrent websocket clients.

	// ctx is cancelled by Stop and bounds every websocket request.
	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	quit    chan struct{}
	quitMtx sync.Mutex

	requestShutdownChan chan struct{}
}

// jsonAuthFail sends a message back to the client if the http auth is rejected.
func jsonAuthFail(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="forestwallet RPC"`)
	http.Error(w, "401 Unauthorized.", http.StatusUnauthorized)
}

// NewServer creates a new server for the owner and foreign APIs, serving
// HTTP POST and websocket clients on every listener.
func NewServer(opts *Options, owner wallet.Owner, foreign wallet.Foreign,
	listeners []net.Listener) *Server {

	serveMux := http.NewServeMux()
	const rpcAuthTimeoutSeconds = 10

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		httpServer: http.Server{
			Handler: serveMux,

			// Timeout connections which don't complete the initial
			// handshake within the allowed timeframe.
			ReadTimeout: time.Second * rpcAuthTimeoutSeconds,
		},
		owner:               owner,
		foreign:             foreign,
		maxPostClients:      opts.MaxPOSTClients,
		maxWebsocketClients: opts.MaxWebsocketClients,
		listeners:           listeners,
		// A hash of the HTTP basic auth string is used for a constant
		// time comparison.
		authsha: sha256.Sum256(httpBasicAuth(opts.Username,
			opts.Password)),
		foreignAuth: opts.ForeignAuth,
		upgrader: websocket.Upgrader{
			// Allow all origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:                 ctx,
		cancel:              cancel,
		quit:                make(chan struct{}),
		requestShutdownChan: make(chan struct{}, 1),
	}

	postClients := throttledCounter(opts.MaxPOSTClients)
	serveMux.Handle(OwnerPath, postClients(
		func(w http.ResponseWriter, r *http.Request) {
			server.postHandler(w, r, true)
		}))
	serveMux.Handle(ForeignPath, postClients(
		func(w http.ResponseWriter, r *http.Request) {
			server.postHandler(w, r, server.foreignAuth)
		}))

	serveMux.Handle(WebsocketPath, throttledFn(opts.MaxWebsocketClients,
		func(w http.ResponseWriter, r *http.Request) {
			authenticated := false
			switch server.checkAuthHeader(r) {
			case nil:
				authenticated = true
			case ErrNoAuth:
				// nothing
			default:
				// If auth was supplied but incorrect, rather than simply
				// being missing, immediately terminate the connection.
				log.Warnf("Disconnecting improperly authorized " +
					"websocket client")
				jsonAuthFail(w)
				return
			}

			conn, err := server.upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Warnf("Cannot websocket upgrade client %s: %v",
					r.RemoteAddr, err)
				return
			}
			wsc := newWebsocketClient(conn, authenticated, r.RemoteAddr)
			server.websocketClientRPC(wsc)
		}))

	return server
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves every listener passed to NewServer.
func (s *Server) Start() {
	for _, lis := range s.listeners {
		s.serve(lis)
	}
}

// postHandler serves one HTTP POST client of the owner or foreign API.
func (s *Server) postHandler(w http.ResponseWriter, r *http.Request,
	requireAuth bool) {

	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "application/json")
	r.Close = true

	if r.Method != http.MethodPost {
		http.Error(w, "405 Method Not Allowed.",
			http.StatusMethodNotAllowed)
		return
	}
	if requireAuth {
		if err := s.checkAuthHeader(r); err != nil {
			log.Warnf("Unauthorized client connection attempt")
			jsonAuthFail(w)
			return
		}
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.PostClientRPC(w, r, r.URL.Path == OwnerPath)
}

// httpBasicAuth returns the UTF-8 bytes of the HTTP Basic authentication
// string:
//
//	"Basic " + base64(username + ":" + password)
func httpBasicAuth(username, password string) []byte {
	const header = "Basic "
	base64 := base64.StdEncoding

	b64InputLen := len(username) + len(":") + len(password)
	b64Input := make([]byte, 0, b64InputLen)
	b64Input = append(b64Input, username...)
	b64Input = append(b64Input, ':')
	b64Input = append(b64Input, password...)

	output := make([]byte, len(header)+base64.EncodedLen(b64InputLen))
	copy(output, header)
	base64.Encode(output[len(header):], b64Input)
	return output
}

// serve serves HTTP POST and websocket RPC on lis.  This function does not
// block on lis.Accept.
func (s *Server) serve(lis net.Listener) {
	s.wg.Add(1)
	go func() {
		log.Infof("Listening on %s", lis.Addr())
		err := s.httpServer.Serve(lis)
		log.Tracef("Finished serving RPC: %v", err)
		s.wg.Done()
	}()
}

// Stop gracefully shuts down the rpc server by stopping and disconnecting all
// clients.  This blocks until shutdown completes.
func (s *Server) Stop() {
	s.quitMtx.Lock()
	select {
	case <-s.quit:
		s.quitMtx.Unlock()
		return
	default:
	}

	// Stop all the listeners.
	for _, listener := range s.listeners {
		err := listener.Close()
		if err != nil {
			log.Errorf("Cannot close listener `%s`: %v",
				listener.Addr(), err)
		}
	}

	// Signal the remaining goroutines to stop.
	s.cancel()
	close(s.quit)
	s.quitMtx.Unlock()

	// Wait for all remaining goroutines to exit.
	s.wg.Wait()
}

// ErrNoAuth represents an error where authentication could not succeed
// due to a missing Authorization HTTP header.
var ErrNoAuth = errors.New("no auth")

// checkAuthHeader checks the HTTP Basic authentication supplied by a client
// in the HTTP request r.  It errors with ErrNoAuth if the request does not
// contain the Authorization header, or another non-nil error if the
// authentication was provided but incorrect.
//
// This check is time-constant.
func (s *Server) checkAuthHeader(r *http.Request) error {
	authhdr := r.Header["Authorization"]
	if len(authhdr) == 0 {
		return ErrNoAuth
	}

	authsha := sha256.Sum256([]byte(authhdr[0]))
	cmp := subtle.ConstantTimeCompare(authsha[:], s.authsha[:])
	if cmp != 1 {
		return errors.New("bad auth")
	}
	return nil
}

// throttledFn wraps an http.HandlerFunc with throttling of concurrent active
// clients by responding with an HTTP 429 when the threshold is crossed.
func throttledFn(threshold int64, f http.HandlerFunc) http.Handler {
	return throttled(threshold, f)
}

// throttledCounter returns a wrapper throttling every handler it wraps
// against one shared count of active clients.
func throttledCounter(threshold int64) func(http.HandlerFunc) http.Handler {
	var active int64
	return func(f http.HandlerFunc) http.Handler {
		return throttledShared(threshold, &active, f)
	}
}

// throttled wraps an http.Handler with throttling of concurrent active
// clients by responding with an HTTP 429 when the threshold is crossed.
func throttled(threshold int64, h http.Handler) http.Handler {
	var active int64
	return throttledShared(threshold, &active, h)
}

func throttledShared(threshold int64, active *int64,
	h http.Handler) http.Handler {

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(active, 1)
		defer atomic.AddInt64(active, -1)

		if current-1 >= threshold {
			log.Warnf("Reached threshold of %d concurrent active "+
				"clients", threshold)
			http.Error(w, "429 Too Many Requests",
				http.StatusTooManyRequests)
			return
		}

		h.ServeHTTP(w, r)
	})
}

// describeRequest returns a short description of the request for logging.
// Params are never logged since slates carry signatures and offsets.
func describeRequest(r *request) string {
	return fmt.Sprintf(`{"id":%v,"method":"%s","params":%d bytes}`,
		r.ID, r.Method, len(r.Params))
}

// invalidAuth checks whether a websocket request is a valid (parsable)
// authenticate request and checks the supplied username and passphrase
// against the server auth.
func (s *Server) invalidAuth(req *request) bool {
	var p struct {
		Username   string `json:"username"`
		Passphrase string `json:"passphrase"`
	}
	names := []string{"username", "passphrase"}
	if err := parseParams(req.Params, names, &p); err != nil {
		return true
	}

	// Check credentials.
	authSha := sha256.Sum256(httpBasicAuth(p.Username, p.Passphrase))
	return subtle.ConstantTimeCompare(authSha[:], s.authsha[:]) != 1
}

// handleRequest runs the handler for req.  Owner methods are only served
// when owner is set; foreign methods are always served.
func (s *Server) handleRequest(ctx context.Context, req *request,
	owner bool) (interface{}, *btcjson.RPCError) {

	log.Debugf("Handling request %s", describeRequest(req))

	if h, ok := foreignHandlers[req.Method]; ok {
		// verify_slate_messages is served by both APIs.
		if oh, ok := ownerHandlers[req.Method]; ok && owner {
			res, err := oh(ctx, s.owner, req.Params)
			return res, jsonError(err)
		}
		res, err := h(ctx, s.foreign, req.Params)
		return res, jsonError(err)
	}

	h, ok := ownerHandlers[req.Method]
	if !ok {
		return nil, btcjson.ErrRPCMethodNotFound
	}
	if !owner {
		return nil, errNoOwnerAuth
	}
	res, err := h(ctx, s.owner, req.Params)
	return res, jsonError(err)
}

func marshalResponse(id interface{}, res interface{},
	jsonErr *btcjson.RPCError) ([]byte, error) {

	if jsonErr != nil {
		res = nil
	}
	return btcjson.MarshalResponse(btcjson.RpcVersion2, id, res, jsonErr)
}

func (s *Server) websocketClientRead(wsc *websocketClient) {
	for {
		_, request, err := wsc.conn.ReadMessage()
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Warnf("Websocket receive failed from "+
					"client %s: %v", wsc.remoteAddr, err)
			}
			close(wsc.allRequests)
			break
		}
		wsc.allRequests <- request
	}
}

func (s *Server) websocketClientRespond(wsc *websocketClient) {
	// A for-select with a read of the quit channel is used instead of a
	// for-range to provide clean shutdown.  This is necessary due to
	// websocketClientRead (which sends to the allRequests chan) not closing
	// allRequests during shutdown if the remote websocket client is still
	// connected.
out:
	for {
		select {
		case reqBytes, ok := <-wsc.allRequests:
			if !ok {
				// client disconnected
				break out
			}

			var req request
			err := json.Unmarshal(reqBytes, &req)
			if err != nil {
				if !wsc.authenticated {
					// Disconnect immediately.
					break out
				}
				mresp, err := marshalResponse(nil, nil,
					btcjson.ErrRPCParse)
				if err != nil {
					log.Errorf("Unable to marshal "+
						"response: %v", err)
					break out
				}
				if err := wsc.send(mresp); err != nil {
					break out
				}
				continue
			}

			if req.Method == "authenticate" {
				if wsc.authenticated || s.invalidAuth(&req) {
					// Disconnect immediately.
					break out
				}
				wsc.authenticated = true
				mresp, err := marshalResponse(req.ID, nil, nil)
				if err != nil {
					log.Errorf("Unable to marshal "+
						"response: %v", err)
					break out
				}
				if err := wsc.send(mresp); err != nil {
					break out
				}
				continue
			}

			// Unauthenticated clients may only use the foreign
			// API, and only when it is open.
			if !wsc.authenticated && s.foreignAuth {
				// Disconnect immediately.
				break out
			}

			if req.Method == "stop" {
				if !wsc.authenticated {
					break out
				}
				mresp, err := marshalResponse(req.ID,
					"forestwallet stopping.", nil)
				if err != nil {
					log.Errorf("Unable to marshal "+
						"response: %v", err)
					break out
				}
				if err := wsc.send(mresp); err != nil {
					break out
				}
				s.requestProcessShutdown()
				continue
			}

			owner := wsc.authenticated
			wsc.wg.Add(1)
			go func() {
				defer wsc.wg.Done()

				res, jsonErr := s.handleRequest(s.ctx, &req, owner)
				mresp, err := marshalResponse(req.ID, res, jsonErr)
				if err != nil {
					log.Errorf("Unable to marshal response: %v",
						err)
					return
				}
				_ = wsc.send(mresp)
			}()

		case <-s.quit:
			break out
		}
	}

	// allow client to disconnect after all handler goroutines are done
	wsc.wg.Wait()
	close(wsc.responses)
	s.wg.Done()
}

func (s *Server) websocketClientSend(wsc *websocketClient) {
	const deadline time.Duration = 2 * time.Second
out:
	for {
		select {
		case response, ok := <-wsc.responses:
			if !ok {
				// client disconnected
				break out
			}
			err := wsc.conn.SetWriteDeadline(time.Now().Add(deadline))
			if err != nil {
				log.Warnf("Cannot set write deadline on "+
					"client %s: %v", wsc.remoteAddr, err)
			}
			err = wsc.conn.WriteMessage(websocket.TextMessage,
				response)
			if err != nil {
				log.Warnf("Failed websocket send to client "+
					"%s: %v", wsc.remoteAddr, err)
				break out
			}

		case <-s.quit:
			break out
		}
	}
	close(wsc.quit)
	if err := wsc.conn.Close(); err != nil {
		log.Debugf("Closing websocket client %s: %v", wsc.remoteAddr,
			err)
	}
	log.Infof("Disconnected websocket client %s", wsc.remoteAddr)
	s.wg.Done()
}

// websocketClientRPC starts the goroutines to serve JSON-RPC requests over a
// websocket connection for a single client.
func (s *Server) websocketClientRPC(wsc *websocketClient) {
	log.Infof("New websocket client %s", wsc.remoteAddr)

	// Clear the read deadline set before the websocket hijacked
	// the connection.
	if err := wsc.conn.SetReadDeadline(time.Time{}); err != nil {
		log.Warnf("Cannot remove read deadline: %v", err)
	}

	// websocketClientRead is intentionally not run with the waitgroup
	// so it is ignored during shutdown.  This is to prevent a hang during
	// shutdown where the goroutine is blocked on a read of the
	// websocket connection if the client is still connected.
	go s.websocketClientRead(wsc)

	s.wg.Add(2)
	go s.websocketClientRespond(wsc)
	go s.websocketClientSend(wsc)

	<-wsc.quit
}

// PostClientRPC processes and replies to a JSON-RPC client request.  Owner
// methods are served only when owner is set.
func (s *Server) PostClientRPC(w http.ResponseWriter, r *http.Request,
	owner bool) {

	body := http.MaxBytesReader(w, r.Body, maxRequestSize)
	rpcRequest, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "413 Request Too Large.",
			http.StatusRequestEntityTooLarge)
		return
	}

	var req request
	if err := json.Unmarshal(rpcRequest, &req); err != nil {
		s.writeResponse(w, nil, nil, btcjson.ErrRPCParse)
		return
	}
	if req.Method == "" {
		s.writeResponse(w, req.ID, nil, btcjson.ErrRPCInvalidRequest)
		return
	}

	// The authenticate method is only meaningful to websocket clients,
	// and stop is only available to the owner.
	var (
		res     interface{}
		jsonErr *btcjson.RPCError
		stop    bool
	)
	switch {
	case req.Method == "authenticate":
		// Drop it.
		return
	case req.Method == "stop" && owner:
		stop = true
		res = "forestwallet stopping."
	default:
		res, jsonErr = s.handleRequest(r.Context(), &req, owner)
	}

	s.writeResponse(w, req.ID, res, jsonErr)

	if stop {
		s.requestProcessShutdown()
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, id interface{},
	res interface{}, jsonErr *btcjson.RPCError) {

	mresp, err := marshalResponse(id, res, jsonErr)
	if err != nil {
		log.Errorf("Unable to marshal response: %v", err)
		http.Error(w, "500 Internal Server Error",
			http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(mresp); err != nil {
		log.Warnf("Unable to respond to client: %v", err)
	}
}

// requestProcessShutdown asks the process to shut down, ignoring the
// request if one is already pending.
func (s *Server) requestProcessShutdown() {
	select {
	case s.requestShutdownChan <- struct{}{}:
	default:
	}
}

// RequestProcessShutdown returns a channel that is sent to when an
// authorized client requests remote shutdown.
func (s *Server) RequestProcessShutdown() <-chan struct{} {
	return s.requestShutdownChan
}
