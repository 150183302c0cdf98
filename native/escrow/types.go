package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// State enumerates the lifecycle states of a settlement escrow. Completed,
// Cancelled and Refunded are terminal: records in those states are retained
// as permanent tombstones for audit and never transition again.
type State uint8

const (
	StateActive State = iota
	StateDelivered
	StateDisputed
	StateCompleted
	StateCancelled
	StateRefunded
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	return s <= StateRefunded
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateRefunded:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDelivered:
		return "delivered"
	case StateDisputed:
		return "disputed"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// AssetType categorises the off-chain asset backing an escrow. The category
// drives the reasonable-amount ceiling and nothing else inside the engine.
// On-chain NFTs settle instantly through the marketplace transfer path and
// must never be escrowed here.
type AssetType uint8

const (
	AssetNFT AssetType = iota
	AssetSocialMedia
	AssetWebsite
	AssetDomain
	AssetOther
)

// Valid reports whether the asset type is within the supported range.
func (a AssetType) Valid() bool {
	return a <= AssetOther
}

// Escrowable reports whether assets of this category settle through the
// escrow engine.
func (a AssetType) Escrowable() bool {
	return a.Valid() && a != AssetNFT
}

func (a AssetType) String() string {
	switch a {
	case AssetNFT:
		return "nft"
	case AssetSocialMedia:
		return "social_media"
	case AssetWebsite:
		return "website"
	case AssetDomain:
		return "domain"
	case AssetOther:
		return "other"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAssetType resolves the canonical lowercase asset category name.
func ParseAssetType(name string) (AssetType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nft":
		return AssetNFT, nil
	case "social_media":
		return AssetSocialMedia, nil
	case "website":
		return AssetWebsite, nil
	case "domain":
		return AssetDomain, nil
	case "other":
		return AssetOther, nil
	default:
		return 0, fmt.Errorf("escrow: unknown asset type %q", name)
	}
}

// maxAmountBits bounds the deposited amount to the 96-bit field it is stored
// in, effectively unbounded for the currency's realistic supply.
const maxAmountBits = 96

// Escrow captures the custodial record for a single funded transaction. The
// amount is fixed at creation and every subsequent payout, refund or penalty
// partitions that exact value with no leftover dust. Deadlines are derived
// once from CreatedAt and the caller-supplied duration and never mutated.
type Escrow struct {
	ID                   uint64
	Buyer                [20]byte
	Seller               [20]byte
	Amount               *big.Int
	AssetType            AssetType
	State                State
	CreatedAt            uint64
	ReleaseTime          uint64
	VerificationDeadline uint64
	DisputeDeadline      uint64
	BuyerConfirmed       bool
	SellerDelivered      bool
	AssetHash            [32]byte
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeEscrow validates structural invariants on a stored escrow record
// and returns a cloned instance with a non-nil amount. The function does not
// mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow: amount must be non-negative")
	}
	if clone.Amount.BitLen() > maxAmountBits {
		return nil, fmt.Errorf("escrow: amount exceeds %d-bit storage field", maxAmountBits)
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("escrow: invalid state: %d", clone.State)
	}
	if !clone.AssetType.Valid() {
		return nil, fmt.Errorf("escrow: invalid asset type: %d", clone.AssetType)
	}
	if clone.Buyer == clone.Seller {
		return nil, fmt.Errorf("escrow: buyer and seller must differ")
	}
	return clone, nil
}
