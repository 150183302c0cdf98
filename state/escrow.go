package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"vertix/native/escrow"
)

var (
	escrowRecordPrefix      = []byte("escrow/record/")
	escrowMetaPrefix        = []byte("escrow/meta/")
	escrowBuyerIndexPrefix  = []byte("escrow/index/buyer/")
	escrowSellerIndexPrefix = []byte("escrow/index/seller/")
	escrowCounterKey        = []byte("escrow/counter")
	escrowMarketplacesKey   = []byte("escrow/marketplaces")
)

type storedEscrow struct {
	ID                   uint64
	Buyer                [20]byte
	Seller               [20]byte
	Amount               *big.Int
	AssetType            uint8
	State                uint8
	CreatedAt            uint64
	ReleaseTime          uint64
	VerificationDeadline uint64
	DisputeDeadline      uint64
	BuyerConfirmed       bool
	SellerDelivered      bool
	AssetHash            [32]byte
}

func escrowKey(prefix []byte, id uint64) []byte {
	key := append([]byte{}, prefix...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(key, buf[:]...)
}

func addressKey(prefix []byte, addr [20]byte) []byte {
	return append(append([]byte{}, prefix...), addr[:]...)
}

func toStored(e *escrow.Escrow) *storedEscrow {
	return &storedEscrow{
		ID:                   e.ID,
		Buyer:                e.Buyer,
		Seller:               e.Seller,
		Amount:               e.Amount,
		AssetType:            uint8(e.AssetType),
		State:                uint8(e.State),
		CreatedAt:            e.CreatedAt,
		ReleaseTime:          e.ReleaseTime,
		VerificationDeadline: e.VerificationDeadline,
		DisputeDeadline:      e.DisputeDeadline,
		BuyerConfirmed:       e.BuyerConfirmed,
		SellerDelivered:      e.SellerDelivered,
		AssetHash:            e.AssetHash,
	}
}

func fromStored(s *storedEscrow) *escrow.Escrow {
	return &escrow.Escrow{
		ID:                   s.ID,
		Buyer:                s.Buyer,
		Seller:               s.Seller,
		Amount:               s.Amount,
		AssetType:            escrow.AssetType(s.AssetType),
		State:                escrow.State(s.State),
		CreatedAt:            s.CreatedAt,
		ReleaseTime:          s.ReleaseTime,
		VerificationDeadline: s.VerificationDeadline,
		DisputeDeadline:      s.DisputeDeadline,
		BuyerConfirmed:       s.BuyerConfirmed,
		SellerDelivered:      s.SellerDelivered,
		AssetHash:            s.AssetHash,
	}
}

// EscrowPut persists the escrow record after structural validation.
func (l *Ledger) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	if sanitized.ID == 0 {
		return fmt.Errorf("state: escrow id must be assigned")
	}
	return l.KVPut(escrowKey(escrowRecordPrefix, sanitized.ID), toStored(sanitized))
}

// EscrowGet loads the escrow record by identifier.
func (l *Ledger) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	var stored storedEscrow
	ok, err := l.KVGet(escrowKey(escrowRecordPrefix, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return fromStored(&stored), true, nil
}

// EscrowNextID increments and returns the dense 1-based escrow counter.
// Identifiers are never reused.
func (l *Ledger) EscrowNextID() (uint64, error) {
	counter, err := l.EscrowCounter()
	if err != nil {
		return 0, err
	}
	counter++
	if err := l.KVPut(escrowCounterKey, counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// EscrowCounter returns the total number of escrows ever created.
func (l *Ledger) EscrowCounter() (uint64, error) {
	var counter uint64
	if _, err := l.KVGet(escrowCounterKey, &counter); err != nil {
		return 0, err
	}
	return counter, nil
}

func (l *Ledger) indexAppend(key []byte, id uint64) error {
	var ids []uint64
	if _, err := l.KVGet(key, &ids); err != nil {
		return err
	}
	return l.KVPut(key, append(ids, id))
}

func (l *Ledger) indexList(key []byte) ([]uint64, error) {
	var ids []uint64
	if _, err := l.KVGet(key, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// EscrowIndex records the escrow under both participants' append-only
// enumeration indexes.
func (l *Ledger) EscrowIndex(buyer, seller [20]byte, id uint64) error {
	if err := l.indexAppend(addressKey(escrowBuyerIndexPrefix, buyer), id); err != nil {
		return err
	}
	return l.indexAppend(addressKey(escrowSellerIndexPrefix, seller), id)
}

// EscrowsByBuyer lists the escrow identifiers created with the address as
// buyer, in creation order.
func (l *Ledger) EscrowsByBuyer(addr [20]byte) ([]uint64, error) {
	return l.indexList(addressKey(escrowBuyerIndexPrefix, addr))
}

// EscrowsBySeller lists the escrow identifiers created with the address as
// seller, in creation order.
func (l *Ledger) EscrowsBySeller(addr [20]byte) ([]uint64, error) {
	return l.indexList(addressKey(escrowSellerIndexPrefix, addr))
}

// EscrowMetadataPut stores the variable-length metadata URI for an escrow.
func (l *Ledger) EscrowMetadataPut(id uint64, uri string) error {
	return l.KVPut(escrowKey(escrowMetaPrefix, id), uri)
}

// EscrowMetadataGet loads the metadata URI for an escrow.
func (l *Ledger) EscrowMetadataGet(id uint64) (string, error) {
	var uri string
	if _, err := l.KVGet(escrowKey(escrowMetaPrefix, id), &uri); err != nil {
		return "", err
	}
	return uri, nil
}

// MarketplaceAuthorized reports whether the address is on the allow-list of
// upstream contracts permitted to create escrows on a buyer's behalf.
func (l *Ledger) MarketplaceAuthorized(addr [20]byte) (bool, error) {
	list, err := l.AuthorizedMarketplaces()
	if err != nil {
		return false, err
	}
	for _, member := range list {
		if member == addr {
			return true, nil
		}
	}
	return false, nil
}

// MarketplaceSetAuthorized adds or removes an address on the allow-list.
// Re-adding an existing member or removing an absent one is a no-op.
func (l *Ledger) MarketplaceSetAuthorized(addr [20]byte, authorized bool) error {
	if addr == ([20]byte{}) {
		return fmt.Errorf("state: zero marketplace address")
	}
	list, err := l.AuthorizedMarketplaces()
	if err != nil {
		return err
	}
	if authorized {
		for _, member := range list {
			if member == addr {
				return nil
			}
		}
		return l.KVPut(escrowMarketplacesKey, append(list, addr))
	}
	filtered := list[:0]
	for _, member := range list {
		if member != addr {
			filtered = append(filtered, member)
		}
	}
	if len(filtered) == len(list) {
		return nil
	}
	return l.KVPut(escrowMarketplacesKey, filtered)
}

// AuthorizedMarketplaces lists the allow-listed creator addresses.
func (l *Ledger) AuthorizedMarketplaces() ([][20]byte, error) {
	var list [][20]byte
	if _, err := l.KVGet(escrowMarketplacesKey, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = [][20]byte{}
	}
	return list, nil
}
