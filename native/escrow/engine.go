package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vertix/core/events"
	"vertix/core/types"
	nativecommon "vertix/native/common"
	"vertix/native/fees"
	"vertix/native/roles"
)

const moduleName = "escrow"

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilRouter = errors.New("escrow engine: payment router not configured")
	errNilSink   = errors.New("escrow engine: fee sink not configured")
	errNilGate   = errors.New("escrow engine: role gate not configured")
)

// VaultAddress is the module account custodying every active escrow's
// deposit. It is derived from a fixed tag so it can never collide with a
// participant key.
var VaultAddress = func() [20]byte {
	hash := ethcrypto.Keccak256([]byte("vertix/native/escrow/vault"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}()

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool, error)
	EscrowNextID() (uint64, error)
	EscrowCounter() (uint64, error)
	EscrowIndex(buyer, seller [20]byte, id uint64) error
	EscrowsByBuyer(addr [20]byte) ([]uint64, error)
	EscrowsBySeller(addr [20]byte) ([]uint64, error)
	EscrowMetadataPut(id uint64, uri string) error
	EscrowMetadataGet(id uint64) (string, error)
	MarketplaceAuthorized(addr [20]byte) (bool, error)
	MarketplaceSetAuthorized(addr [20]byte, authorized bool) error
	AuthorizedMarketplaces() ([][20]byte, error)
	Snapshot() int
	RevertToSnapshot(revision int)
	DiscardSnapshot(revision int)
}

// PaymentRouter moves native currency between ledger accounts. Every outbound
// payment the engine makes goes through this interface; a leg rejection fails
// the whole transition.
type PaymentRouter interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// RoleGate answers privileged-role membership queries. It is injected at
// wiring time so the engine never hard-codes role logic.
type RoleGate interface {
	HasRole(role string, addr [20]byte) bool
}

// FeeSink accumulates the platform's cut of every settled escrow.
type FeeSink interface {
	Collect(from [20]byte, amount *big.Int) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns every escrow record, enforces the settlement state machine,
// performs every money movement and emits every lifecycle notification.
// Execution is strictly serial: entry points reject nested re-entry from
// within an outbound payment's callback, and every transition either applies
// all of its state changes and payments or none of them.
type Engine struct {
	state      engineState
	router     PaymentRouter
	sink       FeeSink
	gate       RoleGate
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	nowFn      func() int64
	limits     Limits
	feeBps     uint32
	penaltyBps uint32
	entered    atomic.Bool
}

// NewEngine creates an escrow engine with a no-op emitter and default limits.
// Callers configure the state backend, payment router, fee sink and role gate
// before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		limits:  DefaultLimits(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPaymentRouter configures the backend carrying outbound payments.
func (e *Engine) SetPaymentRouter(router PaymentRouter) { e.router = router }

// SetFeeSink configures the ledger accumulating platform fees.
func (e *Engine) SetFeeSink(sink FeeSink) { e.sink = sink }

// SetRoleGate configures the capability-check backend for privileged calls.
func (e *Engine) SetRoleGate(gate RoleGate) { e.gate = gate }

// SetPauses configures the module pause view consulted on escrow creation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetLimits overrides the policy bounds applied to new escrows.
func (e *Engine) SetLimits(limits Limits) { e.limits = limits.Clone() }

// SetPenaltyBps configures the seller compensation rate used by the
// cancellation split.
func (e *Engine) SetPenaltyBps(bps uint32) error {
	if bps > fees.MaxBps {
		return fees.ErrBpsOutOfRange
	}
	e.penaltyBps = bps
	return nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// enter rejects nested re-entry while a transition (and any outbound payment
// it triggers) is in flight. Exit must release on every path, so callers
// defer it immediately.
func (e *Engine) enter() error {
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) exit() { e.entered.Store(false) }

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

func (e *Engine) requireWiring() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.router == nil {
		return errNilRouter
	}
	if e.sink == nil {
		return errNilSink
	}
	return nil
}

func (e *Engine) transition(esc *Escrow, to State) error {
	if !ValidTransition(esc.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, esc.State, to)
	}
	esc.State = to
	return e.state.EscrowPut(esc)
}

// Create validates the terms, assigns the next identifier, persists the
// record in the active state and takes custody of the attached payment. The
// caller must be the buyer itself or an allow-listed upstream marketplace
// funding the escrow on the buyer's behalf; either way the true buyer is
// recorded.
func (e *Engine) Create(caller, buyer, seller [20]byte, assetType AssetType, amount *big.Int, duration uint64, assetHash [32]byte, metadataURI string) (*Escrow, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.requireWiring(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != buyer {
		authorized, err := e.state.MarketplaceAuthorized(caller)
		if err != nil {
			return nil, err
		}
		if !authorized {
			return nil, ErrNotAuthorizedToCreate
		}
	}
	if err := ValidateParams(buyer, seller, amount, duration, e.limits); err != nil {
		return nil, err
	}
	if !assetType.Escrowable() {
		return nil, fmt.Errorf("%w: %s", ErrAssetTypeNotEscrowable, assetType)
	}
	if !IsReasonableAmount(amount, assetType, e.limits) {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnreasonableAmount, amount, assetType)
	}
	now := e.now()
	releaseTime, verificationDeadline, disputeDeadline := ComputeDeadlines(duration, now)

	snapshot := e.state.Snapshot()
	id, err := e.state.EscrowNextID()
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	esc := &Escrow{
		ID:                   id,
		Buyer:                buyer,
		Seller:               seller,
		Amount:               new(big.Int).Set(amount),
		AssetType:            assetType,
		State:                StateActive,
		CreatedAt:            now,
		ReleaseTime:          releaseTime,
		VerificationDeadline: verificationDeadline,
		DisputeDeadline:      disputeDeadline,
		AssetHash:            assetHash,
	}
	if err := e.persistNew(esc, metadataURI, caller); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	e.state.DiscardSnapshot(snapshot)
	e.emit(NewCreatedEvent(esc, metadataURI))
	return esc.Clone(), nil
}

func (e *Engine) persistNew(esc *Escrow, metadataURI string, funder [20]byte) error {
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	if err := e.state.EscrowIndex(esc.Buyer, esc.Seller, esc.ID); err != nil {
		return err
	}
	if metadataURI != "" {
		if err := e.state.EscrowMetadataPut(esc.ID, metadataURI); err != nil {
			return err
		}
	}
	return e.router.Transfer(funder, VaultAddress, esc.Amount)
}

// MarkAssetDelivered records that the seller handed over the off-chain asset
// and moves the escrow into the delivered state. No money moves.
func (e *Engine) MarkAssetDelivered(id uint64, caller [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Seller {
		return fmt.Errorf("%w: only the seller may mark delivery", ErrUnauthorized)
	}
	if esc.SellerDelivered {
		return ErrAlreadyDelivered
	}
	if esc.State != StateActive {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, esc.State, StateDelivered)
	}
	snapshot := e.state.Snapshot()
	esc.SellerDelivered = true
	if err := e.transition(esc, StateDelivered); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.DiscardSnapshot(snapshot)
	e.emit(NewDeliveredEvent(esc))
	return nil
}

// ConfirmAssetReceived records the buyer's confirmation and immediately
// settles the escrow in the seller's favour. This is the happy path: instant
// settlement without waiting for the scheduled release time.
func (e *Engine) ConfirmAssetReceived(id uint64, caller [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireWiring(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return fmt.Errorf("%w: only the buyer may confirm receipt", ErrUnauthorized)
	}
	if esc.BuyerConfirmed {
		return ErrAlreadyConfirmed
	}
	if esc.State != StateDelivered {
		return fmt.Errorf("%w: asset not yet delivered (state %s)", ErrIllegalTransition, esc.State)
	}
	snapshot := e.state.Snapshot()
	esc.BuyerConfirmed = true
	if err := e.state.EscrowPut(esc); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	fee, net, err := e.settle(esc)
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.DiscardSnapshot(snapshot)
	e.emit(NewConfirmedEvent(esc))
	e.emit(NewReleasedEvent(esc, fee, net))
	return nil
}

// Release settles an already-earned escrow. It is permissionless: anyone may
// trigger the payout once the objective conditions hold.
func (e *Engine) Release(id uint64, caller [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireWiring(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.State == StateDisputed {
		return ErrInDispute
	}
	if esc.State != StateActive && esc.State != StateDelivered {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, esc.State, StateCompleted)
	}
	if !CanRelease(esc.BuyerConfirmed, esc.SellerDelivered, esc.ReleaseTime, e.now()) {
		return fmt.Errorf("%w: delivered=%t, release at %d", ErrNotReleasable, esc.SellerDelivered, esc.ReleaseTime)
	}
	snapshot := e.state.Snapshot()
	fee, net, err := e.settle(esc)
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.DiscardSnapshot(snapshot)
	e.emit(NewReleasedEvent(esc, fee, net))
	return nil
}

// settle flips the escrow to completed before any payment leg runs, then pays
// the seller's net and pushes the platform fee. The floor-division split
// guarantees net + fee equals the custodied amount exactly. Callers emit the
// release notification after the transition has committed, so a rolled-back
// settlement publishes nothing.
func (e *Engine) settle(esc *Escrow) (fee, net *big.Int, err error) {
	if err := e.transition(esc, StateCompleted); err != nil {
		return nil, nil, err
	}
	fee, net = fees.Split(esc.Amount, e.feeBps)
	if net.Sign() > 0 {
		if err := e.router.Transfer(VaultAddress, esc.Seller, net); err != nil {
			return nil, nil, err
		}
	}
	if err := e.sink.Collect(VaultAddress, fee); err != nil {
		return nil, nil, err
	}
	return fee, net, nil
}

// OpenDispute freezes the escrow pending arbitration. Either party may raise
// a dispute while the escrow is live and the dispute window is open. No money
// moves.
func (e *Engine) OpenDispute(id uint64, caller [20]byte, reason string) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return fmt.Errorf("%w: only a party to the escrow may dispute", ErrUnauthorized)
	}
	if esc.State != StateActive && esc.State != StateDelivered {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, esc.State, StateDisputed)
	}
	now := e.now()
	if !DisputeEligible(esc.State, esc.DisputeDeadline, now) {
		return fmt.Errorf("%w: deadline %d, now %d", ErrDisputeWindowClosed, esc.DisputeDeadline, now)
	}
	snapshot := e.state.Snapshot()
	if err := e.transition(esc, StateDisputed); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.DiscardSnapshot(snapshot)
	e.emit(NewDisputedEvent(esc, caller, reason))
	return nil
}

// ResolveDispute settles a disputed escrow with an arbitrator-determined
// split award. The winner receives the award and the other party receives the
// exact remainder in the same call, giving the arbitrator a continuous
// resolution space rather than a binary choice. A resolution in the seller's
// favour carries the platform fee on the seller's award leg.
func (e *Engine) ResolveDispute(id uint64, caller, winner [20]byte, award *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireWiring(); err != nil {
		return err
	}
	if e.gate == nil {
		return errNilGate
	}
	if !e.gate.HasRole(roles.RoleArbitrator, caller) {
		return fmt.Errorf("%w: caller lacks arbitrator role", ErrUnauthorized)
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.State != StateDisputed {
		return fmt.Errorf("%w: cannot resolve in state %s", ErrIllegalTransition, esc.State)
	}
	if winner != esc.Buyer && winner != esc.Seller {
		return fmt.Errorf("%w: winner must be buyer or seller", ErrInvalidParty)
	}
	if award == nil || award.Sign() < 0 {
		return ErrInvalidAmount
	}
	if award.Cmp(esc.Amount) > 0 {
		return fmt.Errorf("%w: award %s, escrow %s", ErrAwardExceedsEscrow, award, esc.Amount)
	}
	remainder := new(big.Int).Sub(esc.Amount, award)

	snapshot := e.state.Snapshot()
	if err := e.resolve(esc, winner, award, remainder); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.DiscardSnapshot(snapshot)
	return nil
}

func (e *Engine) resolve(esc *Escrow, winner [20]byte, award, remainder *big.Int) error {
	if winner == esc.Buyer {
		if err := e.transition(esc, StateRefunded); err != nil {
			return err
		}
		if award.Sign() > 0 {
			if err := e.router.Transfer(VaultAddress, esc.Buyer, award); err != nil {
				return err
			}
		}
		if remainder.Sign() > 0 {
			if err := e.router.Transfer(VaultAddress, esc.Seller, remainder); err != nil {
				return err
			}
		}
		e.emit(NewResolvedEvent(esc, winner, award, remainder, big.NewInt(0)))
		return nil
	}
	if err := e.transition(esc, StateCompleted); err != nil {
		return err
	}
	fee, net := fees.Split(award, e.feeBps)
	if net.Sign() > 0 {
		if err := e.router.Transfer(VaultAddress, esc.Seller, net); err != nil {
			return err
		}
	}
	if remainder.Sign() > 0 {
		if err := e.router.Transfer(VaultAddress, esc.Buyer, remainder); err != nil {
			return err
		}
	}
	if err := e.sink.Collect(VaultAddress, fee); err != nil {
		return err
	}
	e.emit(NewResolvedEvent(esc, winner, award, remainder, fee))
	return nil
}

// Cancel lets the buyer abandon an escrow before delivery, refunding the full
// deposit. Any seller compensation computed by the cancellation split is paid
// first, then the buyer receives the exact remainder.
func (e *Engine) Cancel(id uint64, caller [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireWiring(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return fmt.Errorf("%w: only the buyer may cancel", ErrUnauthorized)
	}
	if esc.State != StateActive {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, esc.State, StateCancelled)
	}
	if !CanCancel(esc.SellerDelivered, caller, esc.Buyer) {
		return ErrNotCancellable
	}
	refund, compensation := CancellationSplit(esc.Amount, esc.SellerDelivered, e.penaltyBps)

	snapshot := e.state.Snapshot()
	if err := e.transition(esc, StateCancelled); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	if compensation.Sign() > 0 {
		if err := e.router.Transfer(VaultAddress, esc.Seller, compensation); err != nil {
			e.state.RevertToSnapshot(snapshot)
			return err
		}
	}
	if refund.Sign() > 0 {
		if err := e.router.Transfer(VaultAddress, esc.Buyer, refund); err != nil {
			e.state.RevertToSnapshot(snapshot)
			return err
		}
	}
	e.state.DiscardSnapshot(snapshot)
	e.emit(NewCancelledEvent(esc, refund, compensation))
	return nil
}

// SetPlatformFeeBps updates the platform fee rate. Restricted to the fee
// manager role.
func (e *Engine) SetPlatformFeeBps(caller [20]byte, bps uint32) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if e.gate == nil {
		return errNilGate
	}
	if !e.gate.HasRole(roles.RoleFeeManager, caller) {
		return fmt.Errorf("%w: caller lacks fee manager role", ErrUnauthorized)
	}
	if bps > fees.MaxBps {
		return fees.ErrBpsOutOfRange
	}
	previous := e.feeBps
	e.feeBps = bps
	e.emit(NewFeeUpdatedEvent(previous, bps))
	return nil
}

// AddAuthorizedMarketplace allow-lists an upstream contract to create escrows
// on buyers' behalf. Restricted to the admin role.
func (e *Engine) AddAuthorizedMarketplace(caller, marketplace [20]byte) error {
	return e.setMarketplace(caller, marketplace, true)
}

// RemoveAuthorizedMarketplace removes an upstream contract from the
// allow-list. Restricted to the admin role.
func (e *Engine) RemoveAuthorizedMarketplace(caller, marketplace [20]byte) error {
	return e.setMarketplace(caller, marketplace, false)
}

func (e *Engine) setMarketplace(caller, marketplace [20]byte, authorized bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.gate == nil {
		return errNilGate
	}
	if !e.gate.HasRole(roles.RoleAdmin, caller) {
		return fmt.Errorf("%w: caller lacks admin role", ErrUnauthorized)
	}
	if err := e.state.MarketplaceSetAuthorized(marketplace, authorized); err != nil {
		return err
	}
	e.emit(NewMarketplaceEvent(marketplace, authorized))
	return nil
}

// Get returns a copy of the escrow record.
func (e *Engine) Get(id uint64) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// MetadataURI returns the variable-length metadata reference stored alongside
// the escrow record.
func (e *Engine) MetadataURI(id uint64) (string, error) {
	if e == nil || e.state == nil {
		return "", errNilState
	}
	return e.state.EscrowMetadataGet(id)
}

// BuyerEscrows lists the identifiers of escrows with the address as buyer.
func (e *Engine) BuyerEscrows(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.EscrowsByBuyer(addr)
}

// SellerEscrows lists the identifiers of escrows with the address as seller.
func (e *Engine) SellerEscrows(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.EscrowsBySeller(addr)
}

// Counter returns the total number of escrows ever created.
func (e *Engine) Counter() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.EscrowCounter()
}

// AuthorizedMarketplaces lists the allow-listed upstream creators.
func (e *Engine) AuthorizedMarketplaces() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AuthorizedMarketplaces()
}

// FeeBps returns the platform fee rate currently applied on settlement.
func (e *Engine) FeeBps() uint32 { return e.feeBps }

// PenaltyBps returns the cancellation compensation rate.
func (e *Engine) PenaltyBps() uint32 { return e.penaltyBps }

// Limits returns a copy of the policy bounds applied to new escrows.
func (e *Engine) Limits() Limits { return e.limits.Clone() }

// InitFeeBps seeds the fee rate at wiring time without the role check.
// Runtime updates go through SetPlatformFeeBps.
func (e *Engine) InitFeeBps(bps uint32) error {
	if bps > fees.MaxBps {
		return fees.ErrBpsOutOfRange
	}
	e.feeBps = bps
	return nil
}
