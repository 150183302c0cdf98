package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"vertix/core/events"
	"vertix/crypto"
	"vertix/native/escrow"
	"vertix/native/roles"
)

type escrowCreateParams struct {
	Caller      string `json:"caller"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	AssetType   string `json:"assetType"`
	Amount      string `json:"amount"`
	Duration    uint64 `json:"duration"`
	AssetHash   string `json:"assetHash,omitempty"`
	MetadataURI string `json:"metadataURI,omitempty"`
}

type escrowActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type escrowDisputeParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Reason string `json:"reason,omitempty"`
}

type escrowResolveParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Winner string `json:"winner"`
	Award  string `json:"award"`
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

type escrowAddressParams struct {
	Address string `json:"address"`
}

type escrowMarketplaceParams struct {
	Caller      string `json:"caller"`
	Marketplace string `json:"marketplace"`
}

type escrowFeeParams struct {
	Caller string `json:"caller"`
	FeeBps uint32 `json:"feeBps"`
}

type escrowPauseParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type escrowListEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type escrowJSON struct {
	ID                   uint64 `json:"id"`
	Buyer                string `json:"buyer"`
	Seller               string `json:"seller"`
	Amount               string `json:"amount"`
	AssetType            string `json:"assetType"`
	State                string `json:"state"`
	CreatedAt            uint64 `json:"createdAt"`
	ReleaseTime          uint64 `json:"releaseTime"`
	VerificationDeadline uint64 `json:"verificationDeadline"`
	DisputeDeadline      uint64 `json:"disputeDeadline"`
	BuyerConfirmed       bool   `json:"buyerConfirmed"`
	SellerDelivered      bool   `json:"sellerDelivered"`
	AssetHash            string `json:"assetHash"`
	MetadataURI          string `json:"metadataURI,omitempty"`
}

type escrowIDResult struct {
	ID uint64 `json:"id"`
}

type escrowIDListResult struct {
	IDs []uint64 `json:"ids"`
}

type escrowCounterResult struct {
	Counter uint64 `json:"counter"`
}

type escrowFeeInfoResult struct {
	PlatformFeeBps         uint32 `json:"platformFeeBps"`
	CancellationPenaltyBps uint32 `json:"cancellationPenaltyBps"`
	CollectedTotal         string `json:"collectedTotal"`
	Deposits               uint64 `json:"deposits"`
}

type escrowEventResult struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be a non-negative decimal string")
	}
	return amount, nil
}

func parseAssetHash(value string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return hash, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, err
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("asset hash must be %d bytes", len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func (s *Server) escrowView(esc *escrow.Escrow) escrowJSON {
	view := escrowJSON{
		ID:                   esc.ID,
		Buyer:                crypto.FormatAddress(esc.Buyer),
		Seller:               crypto.FormatAddress(esc.Seller),
		Amount:               esc.Amount.String(),
		AssetType:            esc.AssetType.String(),
		State:                esc.State.String(),
		CreatedAt:            esc.CreatedAt,
		ReleaseTime:          esc.ReleaseTime,
		VerificationDeadline: esc.VerificationDeadline,
		DisputeDeadline:      esc.DisputeDeadline,
		BuyerConfirmed:       esc.BuyerConfirmed,
		SellerDelivered:      esc.SellerDelivered,
		AssetHash:            hex.EncodeToString(esc.AssetHash[:]),
	}
	if uri, err := s.engine.MetadataURI(esc.ID); err == nil && uri != "" {
		view.MetadataURI = uri
	}
	return view
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := crypto.ParseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := crypto.ParseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetType, err := escrow.ParseAssetType(params.AssetType)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetHash, err := parseAssetHash(params.AssetHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	esc, err := s.engine.Create(caller, buyer, seller, assetType, amount, params.Duration, assetHash, params.MetadataURI)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowIDResult{ID: esc.ID})
}

func (s *Server) handleActor(w http.ResponseWriter, r *http.Request, req *RPCRequest, invoke func(id uint64, caller [20]byte) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = invoke(params.ID, caller)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowIDResult{ID: params.ID})
}

func (s *Server) handleEscrowMarkDelivered(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleActor(w, r, req, s.engine.MarkAssetDelivered)
}

func (s *Server) handleEscrowConfirmReceived(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleActor(w, r, req, s.engine.ConfirmAssetReceived)
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleActor(w, r, req, s.engine.Release)
}

func (s *Server) handleEscrowCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleActor(w, r, req, s.engine.Cancel)
}

func (s *Server) handleEscrowOpenDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowDisputeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.OpenDispute(params.ID, caller, params.Reason)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowIDResult{ID: params.ID})
}

func (s *Server) handleEscrowResolveDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowResolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	winner, err := crypto.ParseAddress(params.Winner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	award, err := parseAmount(params.Award)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.ResolveDispute(params.ID, caller, winner, award)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowIDResult{ID: params.ID})
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.engine.Get(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, s.escrowView(esc))
}

func (s *Server) handleAddressList(w http.ResponseWriter, req *RPCRequest, list func([20]byte) ([]uint64, error)) {
	var params escrowAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := crypto.ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	ids, err := list(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowIDListResult{IDs: ids})
}

func (s *Server) handleEscrowGetByBuyer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAddressList(w, req, s.engine.BuyerEscrows)
}

func (s *Server) handleEscrowGetBySeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAddressList(w, req, s.engine.SellerEscrows)
}

func (s *Server) handleEscrowCounter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	counter, err := s.engine.Counter()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowCounterResult{Counter: counter})
}

func (s *Server) handleEscrowFeeInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	totals := s.sink.Totals()
	writeResult(w, req.ID, escrowFeeInfoResult{
		PlatformFeeBps:         s.engine.FeeBps(),
		CancellationPenaltyBps: s.engine.PenaltyBps(),
		CollectedTotal:         totals.Collected.String(),
		Deposits:               totals.Deposits,
	})
}

func (s *Server) handleEscrowListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := escrowListEventsParams{}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	var entries []events.Entry
	if s.log != nil {
		entries = s.log.List(params.Prefix, params.Limit)
	}
	results := make([]escrowEventResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, escrowEventResult{
			Sequence:   entry.Sequence,
			Type:       entry.Type,
			Attributes: entry.Attributes,
		})
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleEscrowListMarketplaces(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	list, err := s.engine.AuthorizedMarketplaces()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	formatted := make([]string, 0, len(list))
	for _, addr := range list {
		formatted = append(formatted, crypto.FormatAddress(addr))
	}
	writeResult(w, req.ID, formatted)
}

func (s *Server) handleMarketplaceMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest, invoke func(caller, marketplace [20]byte) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowMarketplaceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	marketplace, err := crypto.ParseAddress(params.Marketplace)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = invoke(caller, marketplace)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowAddMarketplace(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleMarketplaceMutation(w, r, req, s.engine.AddAuthorizedMarketplace)
}

func (s *Server) handleEscrowRemoveMarketplace(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleMarketplaceMutation(w, r, req, s.engine.RemoveAuthorizedMarketplace)
}

func (s *Server) handleEscrowSetFeeBps(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.SetPlatformFeeBps(caller, params.FeeBps)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowPauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if s.registry == nil || !s.registry.HasRole(roles.RoleAdmin, caller) {
		writeError(w, http.StatusForbidden, req.ID, codeEscrowForbidden, "forbidden", "caller lacks admin role")
		return
	}
	if s.pauses == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", "pause registry not configured")
		return
	}
	s.pauses.SetPaused("escrow", params.Paused)
	writeResult(w, req.ID, true)
}
