package escrow

import "errors"

var (
	// ErrInvalidParty rejects a zero address or a buyer equal to the seller.
	ErrInvalidParty = errors.New("escrow: invalid party")
	// ErrInvalidAmount rejects a zero deposit or one above the global
	// maximum listing price.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrUnreasonableAmount rejects deposits outside the per-category sanity
	// ceiling intended to catch fat-finger amounts.
	ErrUnreasonableAmount = errors.New("escrow: amount outside reasonable bounds")
	// ErrDurationOutOfRange rejects durations short enough to enable
	// instant-release griefing or long enough to lock funds indefinitely.
	ErrDurationOutOfRange = errors.New("escrow: duration out of range")
	// ErrAssetTypeNotEscrowable rejects asset categories that settle
	// instantly elsewhere and must not pass through custody.
	ErrAssetTypeNotEscrowable = errors.New("escrow: asset type not escrowable")
	// ErrNotAuthorizedToCreate rejects creators that are neither the buyer
	// nor on the authorized marketplace allow-list.
	ErrNotAuthorizedToCreate = errors.New("escrow: caller not authorized to create")
	// ErrAlreadyDelivered rejects a second delivery mark on the same escrow.
	ErrAlreadyDelivered = errors.New("escrow: asset already delivered")
	// ErrAlreadyConfirmed rejects a second buyer confirmation.
	ErrAlreadyConfirmed = errors.New("escrow: receipt already confirmed")
	// ErrNotReleasable rejects a release while neither the confirmation nor
	// the delivered-and-elapsed condition holds.
	ErrNotReleasable = errors.New("escrow: release conditions not met")
	// ErrInDispute rejects a release attempt on a disputed escrow.
	ErrInDispute = errors.New("escrow: escrow is in dispute")
	// ErrDisputeWindowClosed rejects disputes raised after the dispute
	// deadline.
	ErrDisputeWindowClosed = errors.New("escrow: dispute window closed")
	// ErrAwardExceedsEscrow rejects arbitration awards above the custodied
	// amount.
	ErrAwardExceedsEscrow = errors.New("escrow: award exceeds escrow amount")
	// ErrIllegalTransition rejects any state change absent from the
	// transition validity table.
	ErrIllegalTransition = errors.New("escrow: illegal state transition")
	// ErrUnauthorized rejects callers that are not the party (or role)
	// permitted to drive the requested transition.
	ErrUnauthorized = errors.New("escrow: caller not authorized")
	// ErrNotCancellable rejects cancellations by anyone but the buyer or
	// after the seller has delivered.
	ErrNotCancellable = errors.New("escrow: cancellation conditions not met")
	// ErrReentrantCall rejects nested re-entry into the engine from within
	// an outbound payment's callback.
	ErrReentrantCall = errors.New("escrow: reentrant call rejected")
	// ErrEscrowNotFound reports an unknown escrow identifier.
	ErrEscrowNotFound = errors.New("escrow: escrow not found")
)
