package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vertix/core/types"
)

const (
	EventTypeEscrowCreated           = "escrow.created"
	EventTypeEscrowDelivered         = "escrow.delivered"
	EventTypeEscrowConfirmed         = "escrow.confirmed"
	EventTypeEscrowReleased          = "escrow.released"
	EventTypeEscrowDisputed          = "escrow.disputed"
	EventTypeEscrowResolved          = "escrow.resolved"
	EventTypeEscrowCancelled         = "escrow.cancelled"
	EventTypeFeeUpdated              = "escrow.fee_updated"
	EventTypeMarketplaceAuthorized   = "escrow.marketplace.authorized"
	EventTypeMarketplaceDeauthorized = "escrow.marketplace.deauthorized"
)

func baseAttributes(e *Escrow) map[string]string {
	attrs := make(map[string]string)
	if e == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(e.ID, 10)
	attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
	attrs["seller"] = hex.EncodeToString(e.Seller[:])
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	attrs["assetType"] = e.AssetType.String()
	attrs["state"] = e.State.String()
	return attrs
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCreatedEvent returns the canonical payload for a newly custodied escrow.
func NewCreatedEvent(e *Escrow, metadataURI string) *types.Event {
	attrs := baseAttributes(e)
	if e != nil {
		attrs["createdAt"] = strconv.FormatUint(e.CreatedAt, 10)
		attrs["releaseTime"] = strconv.FormatUint(e.ReleaseTime, 10)
		attrs["verificationDeadline"] = strconv.FormatUint(e.VerificationDeadline, 10)
		attrs["disputeDeadline"] = strconv.FormatUint(e.DisputeDeadline, 10)
		attrs["assetHash"] = hex.EncodeToString(e.AssetHash[:])
	}
	if metadataURI != "" {
		attrs["metadataURI"] = metadataURI
	}
	return &types.Event{Type: EventTypeEscrowCreated, Attributes: attrs}
}

// NewDeliveredEvent returns the payload emitted when the seller marks the
// asset delivered.
func NewDeliveredEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeEscrowDelivered, Attributes: baseAttributes(e)}
}

// NewConfirmedEvent returns the payload emitted when the buyer confirms
// receipt.
func NewConfirmedEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeEscrowConfirmed, Attributes: baseAttributes(e)}
}

// NewReleasedEvent returns the payload for a settlement in the seller's
// favour, including the fee/net breakdown.
func NewReleasedEvent(e *Escrow, fee, net *big.Int) *types.Event {
	attrs := baseAttributes(e)
	attrs["fee"] = amountString(fee)
	attrs["net"] = amountString(net)
	return &types.Event{Type: EventTypeEscrowReleased, Attributes: attrs}
}

// NewDisputedEvent returns the payload emitted when a party freezes the
// escrow pending arbitration.
func NewDisputedEvent(e *Escrow, opener [20]byte, reason string) *types.Event {
	attrs := baseAttributes(e)
	attrs["openedBy"] = hex.EncodeToString(opener[:])
	if reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: EventTypeEscrowDisputed, Attributes: attrs}
}

// NewResolvedEvent returns the payload for an arbitrated settlement with the
// split-award breakdown.
func NewResolvedEvent(e *Escrow, winner [20]byte, award, remainder, fee *big.Int) *types.Event {
	attrs := baseAttributes(e)
	attrs["winner"] = hex.EncodeToString(winner[:])
	attrs["award"] = amountString(award)
	attrs["remainder"] = amountString(remainder)
	attrs["fee"] = amountString(fee)
	return &types.Event{Type: EventTypeEscrowResolved, Attributes: attrs}
}

// NewCancelledEvent returns the payload for a buyer cancellation with the
// refund/compensation breakdown.
func NewCancelledEvent(e *Escrow, refund, compensation *big.Int) *types.Event {
	attrs := baseAttributes(e)
	attrs["refund"] = amountString(refund)
	attrs["compensation"] = amountString(compensation)
	return &types.Event{Type: EventTypeEscrowCancelled, Attributes: attrs}
}

// NewFeeUpdatedEvent returns the payload emitted when the fee manager changes
// the platform rate.
func NewFeeUpdatedEvent(previous, current uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"previousBps": strconv.FormatUint(uint64(previous), 10),
		"currentBps":  strconv.FormatUint(uint64(current), 10),
	}}
}

// NewMarketplaceEvent returns the payload emitted when the allow-list of
// upstream creators changes.
func NewMarketplaceEvent(marketplace [20]byte, authorized bool) *types.Event {
	eventType := EventTypeMarketplaceDeauthorized
	if authorized {
		eventType = EventTypeMarketplaceAuthorized
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"marketplace": hex.EncodeToString(marketplace[:]),
	}}
}
