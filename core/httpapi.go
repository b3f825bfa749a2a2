package core

// HTTP peer-to-peer surface (C5/C6 external interface): eight endpoints over
// chi, bodies are the canonical RLP encoding of the argument/result — no
// JSON on the wire, per the design's "same codec on both sides" rule.

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// DefaultHTTPPort is the default listening port for the peer-to-peer HTTP
// surface.
const DefaultHTTPPort = 8089

// Server exposes an Engine's state over the eight client/peer endpoints.
type Server struct {
	Engine *BlockEngine
}

// NewServer constructs an HTTP server wrapper over engine.
func NewServer(engine *BlockEngine) *Server { return &Server{Engine: engine} }

// Router builds the chi mux implementing every endpoint in the external
// interface table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/client/submit_transaction", s.submitTransaction)
	r.Get("/client/fetch_pending_transaction", s.fetchPendingTransaction)
	r.Get("/client/fetch_confirm_transaction", s.fetchConfirmTransaction)
	r.Get("/client/fetch_state", s.fetchState)
	r.Get("/peer/fetch_block", s.fetchBlock)
	r.Get("/peer/fetch_latest_block", s.fetchLatestBlock)
	r.Get("/peer/fetch_blockchain_length", s.fetchBlockchainLength)
	r.Get("/peer/fetch_transaction", s.fetchTransaction)
	return r
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return nil, false
	}
	return b, true
}

func writeCanonical(w http.ResponseWriter, v interface{}) {
	enc, err := EncodeCanonical(v)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(enc)
}

func (s *Server) submitTransaction(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	st, err := decodeSignedTransaction(b)
	if err != nil {
		http.Error(w, "malformed transaction", http.StatusBadRequest)
		return
	}
	if err := s.Engine.Pool.Insert(st); err != nil {
		logrus.WithError(err).Warn("httpapi: rejecting submitted transaction")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "ok")
}

func hashParam(r *http.Request) (Hash, bool) {
	return func() (Hash, bool) {
		h, err := ParseHash(r.URL.Query().Get("hash"))
		return h, err == nil
	}()
}

func (s *Server) fetchPendingTransaction(w http.ResponseWriter, r *http.Request) {
	h, ok := hashParam(r)
	if !ok {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}
	st, found := s.Engine.Pool.Get(h)
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(encodeSignedTransactionOrPanic(st))
}

// encodeSignedTransactionOrPanic avoids encoding SignedTransaction twice
// (once for hashing's internal shape, once for the wire): the wire body is
// simply the raw RLP bytes already produced by encodeSignedTransaction, so
// this returns those bytes directly rather than re-wrapping them.
func encodeSignedTransactionOrPanic(st SignedTransaction) []byte {
	b, err := encodeSignedTransaction(st)
	if err != nil {
		panic(fmt.Sprintf("core: encode signed transaction for wire: %v", err))
	}
	return b
}

func (s *Server) schemaSnapshot() (*Schema, func()) {
	snap := s.Engine.DB.Snapshot()
	return NewSchema(snap), snap.Discard
}

func (s *Server) fetchConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	h, ok := hashParam(r)
	if !ok {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}
	schema, done := s.schemaSnapshot()
	defer done()
	st, found, err := schema.Transactions.Get(h)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(encodeSignedTransactionOrPanic(st))
}

func (s *Server) fetchTransaction(w http.ResponseWriter, r *http.Request) {
	s.fetchConfirmTransaction(w, r)
}

func (s *Server) fetchState(w http.ResponseWriter, r *http.Request) {
	addr := Address(r.URL.Query().Get("address"))
	if addr == "" {
		http.Error(w, "missing address", http.StatusBadRequest)
		return
	}
	schema, done := s.schemaSnapshot()
	defer done()
	acct, found, err := schema.StateTrie.Get(addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	enc, err := encodeAccountState(acct)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(enc)
}

func (s *Server) fetchBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	if err != nil {
		http.Error(w, "bad height", http.StatusBadRequest)
		return
	}
	schema, done := s.schemaSnapshot()
	defer done()
	sb, found, err := schema.Blocks.Get(height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	enc, err := encodeSignedBlock(sb)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(enc)
}

func (s *Server) fetchLatestBlock(w http.ResponseWriter, r *http.Request) {
	schema, done := s.schemaSnapshot()
	defer done()
	sb, err := schema.LastBlock()
	if err != nil {
		if Is(err, KindEmpty) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	enc, err := encodeSignedBlock(sb)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(enc)
}

func (s *Server) fetchBlockchainLength(w http.ResponseWriter, r *http.Request) {
	schema, done := s.schemaSnapshot()
	defer done()
	n, err := schema.BlockchainLength()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeCanonical(w, n)
}

// HTTPPeerClient is the outbound half of the HTTP peer-to-peer surface: it
// issues requests against a single remote peer's base URL on behalf of the
// sync engine.
type HTTPPeerClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPPeerClient returns a client against baseURL with a bounded request
// timeout, matching the concurrency model's "bounded, not indefinite" rule
// for cross-process calls.
func NewHTTPPeerClient(baseURL string) *HTTPPeerClient {
	return &HTTPPeerClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTPPeerClient) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

// FetchPeerChainLength implements PeerClient.
func (c *HTTPPeerClient) FetchPeerChainLength(ctx context.Context) (uint64, error) {
	b, status, err := c.get(ctx, "/peer/fetch_blockchain_length")
	if err != nil {
		return 0, WrapErr(KindPeerUnavailable, "fetch_blockchain_length", err)
	}
	if status != http.StatusOK {
		return 0, NewErr(KindPeerUnavailable, "fetch_blockchain_length: unexpected status "+strconv.Itoa(status))
	}
	var n uint64
	if err := DecodeCanonical(b, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// FetchBlock implements PeerClient.
func (c *HTTPPeerClient) FetchBlock(ctx context.Context, height uint64) (SignedBlock, error) {
	b, status, err := c.get(ctx, "/peer/fetch_block?height="+strconv.FormatUint(height, 10))
	if err != nil {
		return SignedBlock{}, WrapErr(KindPeerUnavailable, "fetch_block", err)
	}
	if status == http.StatusNotFound {
		return SignedBlock{}, NewErr(KindEmpty, "peer has no block at that height")
	}
	if status != http.StatusOK {
		return SignedBlock{}, NewErr(KindPeerUnavailable, "fetch_block: unexpected status "+strconv.Itoa(status))
	}
	return decodeSignedBlock(b)
}

// FetchTransaction implements PeerClient.
func (c *HTTPPeerClient) FetchTransaction(ctx context.Context, h Hash) (SignedTransaction, error) {
	b, status, err := c.get(ctx, "/peer/fetch_transaction?hash="+h.String())
	if err != nil {
		return SignedTransaction{}, WrapErr(KindPeerUnavailable, "fetch_transaction", err)
	}
	if status == http.StatusNotFound {
		return SignedTransaction{}, NewErr(KindEmpty, "peer does not have that transaction")
	}
	if status != http.StatusOK {
		return SignedTransaction{}, NewErr(KindPeerUnavailable, "fetch_transaction: unexpected status "+strconv.Itoa(status))
	}
	return decodeSignedTransaction(b)
}

var _ PeerClient = (*HTTPPeerClient)(nil)
