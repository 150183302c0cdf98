package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vertix/core/events"
	nativecommon "vertix/native/common"
	"vertix/native/escrow"
	"vertix/native/fees"
	"vertix/native/roles"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001

	codeEscrowNotFound  = -32022
	codeEscrowForbidden = -32023
	codeEscrowConflict  = -32024
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Server exposes the settlement engine over JSON-RPC 2.0. Mutating methods
// require a bearer token and are serialized so the engine observes the
// strictly ordered execution the state machine assumes.
type Server struct {
	mu        sync.Mutex
	engine    *escrow.Engine
	sink      *fees.Sink
	registry  *roles.Registry
	pauses    *nativecommon.PauseSet
	log       *events.Log
	authToken string
	router    chi.Router
}

// NewServer wires the RPC surface around the supplied collaborators.
func NewServer(engine *escrow.Engine, sink *fees.Sink, registry *roles.Registry, pauses *nativecommon.PauseSet, log *events.Log, authToken string) *Server {
	s := &Server{
		engine:    engine,
		sink:      sink,
		registry:  registry,
		pauses:    pauses,
		log:       log,
		authToken: strings.TrimSpace(authToken),
	}
	router := chi.NewRouter()
	router.Post("/", s.handleRPC)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	s.router = router
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "method required")
		return
	}
	handler, ok := s.handlers()[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", method)
		return
	}
	handler(w, r, &req)
}

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"escrow_create":            s.handleEscrowCreate,
		"escrow_markDelivered":     s.handleEscrowMarkDelivered,
		"escrow_confirmReceived":   s.handleEscrowConfirmReceived,
		"escrow_release":           s.handleEscrowRelease,
		"escrow_openDispute":       s.handleEscrowOpenDispute,
		"escrow_resolveDispute":    s.handleEscrowResolveDispute,
		"escrow_cancel":            s.handleEscrowCancel,
		"escrow_get":               s.handleEscrowGet,
		"escrow_getByBuyer":        s.handleEscrowGetByBuyer,
		"escrow_getBySeller":       s.handleEscrowGetBySeller,
		"escrow_counter":           s.handleEscrowCounter,
		"escrow_feeInfo":           s.handleEscrowFeeInfo,
		"escrow_listEvents":        s.handleEscrowListEvents,
		"escrow_listMarketplaces":  s.handleEscrowListMarketplaces,
		"escrow_addMarketplace":    s.handleEscrowAddMarketplace,
		"escrow_removeMarketplace": s.handleEscrowRemoveMarketplace,
		"escrow_setFeeBps":         s.handleEscrowSetFeeBps,
		"escrow_setPaused":         s.handleEscrowSetPaused,
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}})
}

// writeEngineError maps engine failures onto stable RPC error codes so
// callers can distinguish a retryable boundary violation from a permanent
// authorization failure.
func writeEngineError(w http.ResponseWriter, id json.RawMessage, err error) {
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "not_found", err.Error())
	case errors.Is(err, escrow.ErrUnauthorized), errors.Is(err, escrow.ErrNotAuthorizedToCreate):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, "forbidden", err.Error())
	case errors.Is(err, escrow.ErrInvalidParty),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrUnreasonableAmount),
		errors.Is(err, escrow.ErrDurationOutOfRange),
		errors.Is(err, escrow.ErrAssetTypeNotEscrowable),
		errors.Is(err, fees.ErrBpsOutOfRange):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, escrow.ErrIllegalTransition),
		errors.Is(err, escrow.ErrAlreadyDelivered),
		errors.Is(err, escrow.ErrAlreadyConfirmed),
		errors.Is(err, escrow.ErrNotReleasable),
		errors.Is(err, escrow.ErrInDispute),
		errors.Is(err, escrow.ErrDisputeWindowClosed),
		errors.Is(err, escrow.ErrAwardExceedsEscrow),
		errors.Is(err, escrow.ErrNotCancellable),
		errors.Is(err, escrow.ErrReentrantCall),
		errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}
