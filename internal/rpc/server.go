package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/observability"
	"solana-atomic-swap/internal/storage"
)

// MaxRequestBytes bounds the size of one HTTP request body.
const MaxRequestBytes = 1 << 20

// handlerFunc serves one method. Returned errors are converted with toRPCError.
type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server exposes the atomic swap program over JSON-RPC 2.0.
//
// Transactions are signed by declaration: the caller names the signer in the
// params and the server trusts it. It is meant for local networks and tests.
type Server struct {
	program *atomicswap.Program
	ledger  *ledger.Ledger
	events  storage.SwapEventStore
	clock   *ledger.ManualClock
	hub     *Hub
	logger  *zap.Logger
	methods map[string]handlerFunc
}

// Option configures Server.
type Option func(*Server)

// WithEventStore enables getSwapHistory.
func WithEventStore(store storage.SwapEventStore) Option {
	return func(s *Server) { s.events = store }
}

// WithManualClock enables advanceClock.
func WithManualClock(clock *ledger.ManualClock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithHub serves websocket subscriptions on /ws. The hub must also be
// registered as an event sink of the ledger.
func WithHub(hub *Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server for program.
func NewServer(program *atomicswap.Program, opts ...Option) *Server {
	s := &Server{
		program: program,
		ledger:  program.Ledger(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.methods = s.routes()
	return s
}

// Handler returns the HTTP routes: JSON-RPC on /, websocket on /ws and a
// liveness probe on /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "slot": s.ledger.Slot()})
	})
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return mux
}

// ServeHTTP handles single and batch JSON-RPC requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: &Error{Code: CodeInvalidRequest, Message: err.Error()}})
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: &Error{Code: CodeParseError, Message: err.Error()}})
			return
		}
		if len(reqs) == 0 {
			writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: &Error{Code: CodeInvalidRequest, Message: "empty batch"}})
			return
		}
		resps := make([]Response, len(reqs))
		for i := range reqs {
			resps[i] = s.dispatch(r.Context(), &reqs[i])
		}
		writeJSON(w, resps)
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: &Error{Code: CodeParseError, Message: err.Error()}})
		return
	}
	writeJSON(w, s.dispatch(r.Context(), &req))
}

var nullID = json.RawMessage("null")

func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}
	resp := Response{JSONRPC: Version, ID: id}

	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
		return resp
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		resp.Error = &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		observability.RecordRPCRequest("unknown", "error", 0)
		return resp
	}

	start := time.Now()
	result, err := handler(ctx, req.Params)
	elapsed := time.Since(start)

	if err != nil {
		resp.Error = toRPCError(err)
		observability.RecordRPCRequest(req.Method, "error", elapsed.Seconds())
		if resp.Error.Code == CodeInternal {
			s.logger.Error("rpc method failed", zap.String("method", req.Method), zap.Error(err))
		} else {
			s.logger.Debug("rpc method rejected",
				zap.String("method", req.Method),
				zap.Int("code", resp.Error.Code),
				zap.String("message", resp.Error.Message),
			)
		}
		return resp
	}

	observability.RecordRPCRequest(req.Method, "ok", elapsed.Seconds())
	resp.Result = result
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
