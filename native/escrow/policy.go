package escrow

import (
	"math/big"

	"vertix/native/fees"
)

// DisputeGraceSeconds is the fixed window after the scheduled release during
// which a dispute can still be raised even though auto-release may already
// have become eligible. The grace window is protocol, not configuration.
const DisputeGraceSeconds uint64 = 7 * 24 * 60 * 60

// Limits carries the tunable policy bounds. Numeric values are configuration
// supplied by the operator, not constants fixed by the engine.
type Limits struct {
	// MinDuration guards against instant-release griefing.
	MinDuration uint64
	// MaxDuration guards against indefinite fund lock-up.
	MaxDuration uint64
	// MinEscrowAmount is the dust threshold below which custody is refused.
	MinEscrowAmount *big.Int
	// MaxListingPrice is the global hard ceiling on any deposit.
	MaxListingPrice *big.Int
	// SocialMediaCap is the reasonable-amount ceiling for social-media
	// account sales. Website and domain sales are capped at the global
	// maximum.
	SocialMediaCap *big.Int
	// OtherCap is the reasonable-amount ceiling for uncategorised off-chain
	// assets.
	OtherCap *big.Int
}

// DefaultLimits returns the policy bounds shipped with the platform. All of
// them are operator-tunable through configuration.
func DefaultLimits() Limits {
	return Limits{
		MinDuration:     60 * 60,
		MaxDuration:     90 * 24 * 60 * 60,
		MinEscrowAmount: scaled(1, 15),   // 0.001 in 18-decimal units
		MaxListingPrice: scaled(1000, 18),
		SocialMediaCap:  scaled(100, 18),
		OtherCap:        scaled(250, 18),
	}
}

func scaled(units int64, decimals uint) *big.Int {
	value := big.NewInt(units)
	return value.Mul(value, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

// Clone returns a deep copy of the limits.
func (l Limits) Clone() Limits {
	clone := l
	if l.MinEscrowAmount != nil {
		clone.MinEscrowAmount = new(big.Int).Set(l.MinEscrowAmount)
	}
	if l.MaxListingPrice != nil {
		clone.MaxListingPrice = new(big.Int).Set(l.MaxListingPrice)
	}
	if l.SocialMediaCap != nil {
		clone.SocialMediaCap = new(big.Int).Set(l.SocialMediaCap)
	}
	if l.OtherCap != nil {
		clone.OtherCap = new(big.Int).Set(l.OtherCap)
	}
	return clone
}

// CapFor resolves the reasonable-amount ceiling for the supplied category.
func (l Limits) CapFor(assetType AssetType) *big.Int {
	switch assetType {
	case AssetSocialMedia:
		if l.SocialMediaCap != nil {
			return l.SocialMediaCap
		}
	case AssetOther:
		if l.OtherCap != nil {
			return l.OtherCap
		}
	}
	return l.MaxListingPrice
}

// ValidateParams enforces the structural creation invariants: distinct
// non-zero parties, a positive amount within the global ceiling, and a
// duration inside the configured bounds.
func ValidateParams(buyer, seller [20]byte, amount *big.Int, duration uint64, limits Limits) error {
	if buyer == ([20]byte{}) || seller == ([20]byte{}) || buyer == seller {
		return ErrInvalidParty
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.BitLen() > maxAmountBits {
		return ErrInvalidAmount
	}
	if limits.MaxListingPrice != nil && amount.Cmp(limits.MaxListingPrice) > 0 {
		return ErrInvalidAmount
	}
	if duration < limits.MinDuration || duration > limits.MaxDuration {
		return ErrDurationOutOfRange
	}
	return nil
}

// IsReasonableAmount applies the soft per-category sanity ceiling intended to
// catch fat-finger deposits, not to act as a hard economic limit.
func IsReasonableAmount(amount *big.Int, assetType AssetType, limits Limits) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	if limits.MinEscrowAmount != nil && amount.Cmp(limits.MinEscrowAmount) < 0 {
		return false
	}
	if ceiling := limits.CapFor(assetType); ceiling != nil && amount.Cmp(ceiling) > 0 {
		return false
	}
	return true
}

// ComputeDeadlines derives the three escrow deadlines from the creation time.
// The buyer is nudged to verify within the first half of the window; the
// dispute deadline extends a fixed grace period past the scheduled release.
func ComputeDeadlines(duration, now uint64) (releaseTime, verificationDeadline, disputeDeadline uint64) {
	releaseTime = now + duration
	verificationDeadline = now + duration/2
	disputeDeadline = releaseTime + DisputeGraceSeconds
	return releaseTime, verificationDeadline, disputeDeadline
}

// CanRelease reports whether the custodied amount has been earned: either the
// buyer confirmed receipt (immediate path) or the seller delivered and the
// scheduled release time elapsed (auto-release path). An undelivered escrow
// never auto-releases no matter how much time passes.
func CanRelease(buyerConfirmed, sellerDelivered bool, releaseTime, now uint64) bool {
	if buyerConfirmed {
		return true
	}
	return sellerDelivered && now >= releaseTime
}

// CanCancel reports whether the caller may cancel: only the buyer, and only
// before the seller has delivered.
func CanCancel(sellerDelivered bool, caller, buyer [20]byte) bool {
	return caller == buyer && !sellerDelivered
}

// CancellationSplit partitions the custodied amount on cancellation. Before
// delivery the buyer is made whole; after delivery the seller keeps a
// penalty-rate compensation for completed off-ledger work and the buyer
// receives the exact remainder. The delivered branch is currently unreachable
// through the engine because CanCancel gates cancellation to pre-delivery;
// it is retained as specified pending a product decision on late
// cancellation.
func CancellationSplit(amount *big.Int, sellerDelivered bool, penaltyBps uint32) (buyerRefund, sellerCompensation *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if !sellerDelivered {
		return new(big.Int).Set(amount), big.NewInt(0)
	}
	sellerCompensation, buyerRefund = fees.Split(amount, penaltyBps)
	return buyerRefund, sellerCompensation
}

// DisputeEligible reports whether a dispute can still be opened: the escrow
// must not have settled and the dispute deadline must not have passed.
func DisputeEligible(state State, disputeDeadline, now uint64) bool {
	if state != StateActive && state != StateDelivered {
		return false
	}
	return now <= disputeDeadline
}

// ValidTransition is the state-machine validity table. Per-call guards fail
// with specific errors first; this table is the last line of defence against
// an illegal transition slipping through.
func ValidTransition(from, to State) bool {
	switch from {
	case StateActive:
		switch to {
		case StateDelivered, StateDisputed, StateCancelled:
			return true
		}
	case StateDelivered:
		switch to {
		case StateDisputed, StateCompleted:
			return true
		}
	case StateDisputed:
		switch to {
		case StateCompleted, StateRefunded:
			return true
		}
	}
	return false
}
