package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vertix/core/events"
	"vertix/crypto"
	nativecommon "vertix/native/common"
	"vertix/native/escrow"
	"vertix/native/fees"
	"vertix/native/roles"
	"vertix/state"
	"vertix/storage"
)

const testToken = "test-token"

var (
	rpcBuyer    = [20]byte{0x01}
	rpcSeller   = [20]byte{0x02}
	rpcAdmin    = [20]byte{0x03}
	rpcArbiter  = [20]byte{0x04}
	rpcTreasury = [20]byte{0xFE}
)

type rpcFixture struct {
	server   *Server
	ledger   *state.Ledger
	registry *roles.Registry
	pauses   *nativecommon.PauseSet
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	ledger := state.NewLedger(storage.NewMemDB())
	registry := roles.NewRegistry(ledger)
	require.NoError(t, registry.Grant(roles.RoleAdmin, rpcAdmin))
	require.NoError(t, registry.Grant(roles.RoleArbitrator, rpcArbiter))

	sink := fees.NewSink(rpcTreasury, ledger)
	pauses := nativecommon.NewPauseSet()
	eventLog := events.NewLog(64)

	engine := escrow.NewEngine()
	engine.SetState(ledger)
	engine.SetPaymentRouter(ledger)
	engine.SetFeeSink(sink)
	engine.SetRoleGate(registry)
	engine.SetPauses(pauses)
	engine.SetEmitter(eventLog)
	require.NoError(t, engine.InitFeeBps(250))

	funding := new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)
	require.NoError(t, ledger.Mint(rpcBuyer, funding))
	ledger.DiscardSnapshot(0)

	return &rpcFixture{
		server:   NewServer(engine, sink, registry, pauses, eventLog, testToken),
		ledger:   ledger,
		registry: registry,
		pauses:   pauses,
	}
}

func (f *rpcFixture) call(t *testing.T, token, method string, params interface{}) (int, rpcResponse) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, httpReq)

	var resp rpcResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	return recorder.Code, resp
}

func decodeResult(t *testing.T, resp rpcResponse, out interface{}) {
	t.Helper()
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, out))
}

func createParams() escrowCreateParams {
	return escrowCreateParams{
		Caller:    crypto.FormatAddress(rpcBuyer),
		Buyer:     crypto.FormatAddress(rpcBuyer),
		Seller:    crypto.FormatAddress(rpcSeller),
		AssetType: "website",
		Amount:    "1000000000000000000",
		Duration:  7 * 24 * 60 * 60,
		AssetHash: "0x" + fmt.Sprintf("%064x", 0xAB),
	}
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	f := newRPCFixture(t)

	status, resp := f.call(t, "", "escrow_create", createParams())
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = f.call(t, "wrong-token", "escrow_create", createParams())
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestReadMethodsNeedNoAuth(t *testing.T) {
	f := newRPCFixture(t)

	status, resp := f.call(t, "", "escrow_counter", nil)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var counter escrowCounterResult
	decodeResult(t, resp, &counter)
	require.Zero(t, counter.Counter)
}

func TestUnknownMethod(t *testing.T) {
	f := newRPCFixture(t)
	status, resp := f.call(t, testToken, "escrow_selfDestruct", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestLifecycleOverRPC(t *testing.T) {
	f := newRPCFixture(t)

	status, resp := f.call(t, testToken, "escrow_create", createParams())
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var created escrowIDResult
	decodeResult(t, resp, &created)
	require.Equal(t, uint64(1), created.ID)

	status, resp = f.call(t, "", "escrow_get", escrowIDParams{ID: 1})
	require.Equal(t, http.StatusOK, status)
	var view escrowJSON
	decodeResult(t, resp, &view)
	require.Equal(t, "active", view.State)
	require.Equal(t, "website", view.AssetType)
	require.Equal(t, "1000000000000000000", view.Amount)

	status, resp = f.call(t, testToken, "escrow_markDelivered", escrowActorParams{ID: 1, Caller: crypto.FormatAddress(rpcSeller)})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, testToken, "escrow_confirmReceived", escrowActorParams{ID: 1, Caller: crypto.FormatAddress(rpcBuyer)})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, "", "escrow_get", escrowIDParams{ID: 1})
	require.Equal(t, http.StatusOK, status)
	decodeResult(t, resp, &view)
	require.Equal(t, "completed", view.State)
	require.True(t, view.BuyerConfirmed)

	status, resp = f.call(t, "", "escrow_feeInfo", nil)
	require.Equal(t, http.StatusOK, status)
	var feeInfo escrowFeeInfoResult
	decodeResult(t, resp, &feeInfo)
	require.Equal(t, uint32(250), feeInfo.PlatformFeeBps)
	require.Equal(t, "25000000000000000", feeInfo.CollectedTotal)
	require.Equal(t, uint64(1), feeInfo.Deposits)

	status, resp = f.call(t, "", "escrow_getByBuyer", escrowAddressParams{Address: crypto.FormatAddress(rpcBuyer)})
	require.Equal(t, http.StatusOK, status)
	var ids escrowIDListResult
	decodeResult(t, resp, &ids)
	require.Equal(t, []uint64{1}, ids.IDs)
}

func TestDisputeOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	_, resp := f.call(t, testToken, "escrow_create", createParams())
	require.Nil(t, resp.Error)

	status, resp := f.call(t, testToken, "escrow_openDispute", escrowDisputeParams{ID: 1, Caller: crypto.FormatAddress(rpcBuyer), Reason: "credentials not delivered"})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, testToken, "escrow_release", escrowActorParams{ID: 1, Caller: crypto.FormatAddress(rpcSeller)})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)

	status, resp = f.call(t, testToken, "escrow_resolveDispute", escrowResolveParams{
		ID:     1,
		Caller: crypto.FormatAddress(rpcArbiter),
		Winner: crypto.FormatAddress(rpcBuyer),
		Award:  "1000000000000000000",
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, "", "escrow_get", escrowIDParams{ID: 1})
	require.Equal(t, http.StatusOK, status)
	var view escrowJSON
	decodeResult(t, resp, &view)
	require.Equal(t, "refunded", view.State)
}

func TestEngineErrorMapping(t *testing.T) {
	f := newRPCFixture(t)

	status, resp := f.call(t, "", "escrow_get", escrowIDParams{ID: 99})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeEscrowNotFound, resp.Error.Code)

	_, resp = f.call(t, testToken, "escrow_create", createParams())
	require.Nil(t, resp.Error)

	status, resp = f.call(t, testToken, "escrow_cancel", escrowActorParams{ID: 1, Caller: crypto.FormatAddress(rpcSeller)})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)

	params := createParams()
	params.Amount = "not-a-number"
	status, resp = f.call(t, testToken, "escrow_create", params)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	params = createParams()
	params.Buyer = "0x1234"
	status, resp = f.call(t, testToken, "escrow_create", params)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestPauseAdministration(t *testing.T) {
	f := newRPCFixture(t)

	status, resp := f.call(t, testToken, "escrow_setPaused", escrowPauseParams{Caller: crypto.FormatAddress(rpcBuyer), Paused: true})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)

	status, resp = f.call(t, testToken, "escrow_setPaused", escrowPauseParams{Caller: crypto.FormatAddress(rpcAdmin), Paused: true})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, testToken, "escrow_create", createParams())
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)

	status, resp = f.call(t, testToken, "escrow_setPaused", escrowPauseParams{Caller: crypto.FormatAddress(rpcAdmin), Paused: false})
	require.Equal(t, http.StatusOK, status)
	_, resp = f.call(t, testToken, "escrow_create", createParams())
	require.Nil(t, resp.Error)
}

func TestMarketplaceAdministrationOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	market := [20]byte{0x09}

	status, resp := f.call(t, testToken, "escrow_addMarketplace", escrowMarketplaceParams{
		Caller:      crypto.FormatAddress(rpcAdmin),
		Marketplace: crypto.FormatAddress(market),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, "", "escrow_listMarketplaces", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []string
	decodeResult(t, resp, &listed)
	require.Equal(t, []string{crypto.FormatAddress(market)}, listed)

	status, resp = f.call(t, testToken, "escrow_removeMarketplace", escrowMarketplaceParams{
		Caller:      crypto.FormatAddress(rpcAdmin),
		Marketplace: crypto.FormatAddress(market),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestListEventsOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	_, resp := f.call(t, testToken, "escrow_create", createParams())
	require.Nil(t, resp.Error)
	_, resp = f.call(t, testToken, "escrow_markDelivered", escrowActorParams{ID: 1, Caller: crypto.FormatAddress(rpcSeller)})
	require.Nil(t, resp.Error)

	status, resp := f.call(t, "", "escrow_listEvents", escrowListEventsParams{Prefix: "escrow."})
	require.Equal(t, http.StatusOK, status)
	var entries []escrowEventResult
	decodeResult(t, resp, &entries)
	require.Len(t, entries, 2)
	require.Equal(t, "escrow.created", entries[0].Type)
	require.Equal(t, "escrow.delivered", entries[1].Type)
	require.Equal(t, "1", entries[0].Attributes["id"])
}

func TestHealthz(t *testing.T) {
	f := newRPCFixture(t)
	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
}
