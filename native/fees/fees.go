package fees

import (
	"errors"
	"math/big"
	"sync"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10_000

// MaxBps bounds any configurable rate to 100%.
const MaxBps uint32 = BpsDenominator

var (
	errNilTransfer = errors.New("fees: transfer backend not configured")
	errNilTreasury = errors.New("fees: treasury not configured")
	// ErrSelfCollect rejects a collection whose source is the treasury
	// itself: the fee would never leave custody and the totals would
	// overstate the platform take.
	ErrSelfCollect = errors.New("fees: fee source and treasury must differ")
	// ErrBpsOutOfRange rejects rates above 100%.
	ErrBpsOutOfRange = errors.New("fees: bps out of range")
)

// Split partitions gross into (fee, net) at the supplied basis-point rate
// using floor division. The partition is exact: fee + net equals gross for
// every input, so no value is ever stranded by rounding.
func Split(gross *big.Int, bps uint32) (fee, net *big.Int) {
	if gross == nil || gross.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if bps == 0 {
		return big.NewInt(0), new(big.Int).Set(gross)
	}
	fee = new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(bps)))
	fee.Div(fee, big.NewInt(BpsDenominator))
	if fee.Cmp(gross) >= 0 {
		return new(big.Int).Set(gross), big.NewInt(0)
	}
	net = new(big.Int).Sub(gross, fee)
	return fee, net
}

// Transferer moves value between ledger accounts. The escrow state satisfies
// this through its payment router.
type Transferer interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Totals summarises the accumulated platform take.
type Totals struct {
	Collected *big.Int
	Deposits  uint64
}

// Clone returns a copy with a duplicated big.Int value.
func (t Totals) Clone() Totals {
	clone := Totals{Deposits: t.Deposits, Collected: big.NewInt(0)}
	if t.Collected != nil {
		clone.Collected = new(big.Int).Set(t.Collected)
	}
	return clone
}

// Sink is the platform fee ledger. Each successful settlement pushes its
// computed fee here; the sink credits the treasury account and keeps running
// totals for the read surface. Withdrawal from the treasury is out of scope.
type Sink struct {
	mu       sync.Mutex
	treasury [20]byte
	transfer Transferer
	totals   Totals
}

// NewSink constructs a fee sink crediting the supplied treasury account.
func NewSink(treasury [20]byte, transfer Transferer) *Sink {
	return &Sink{
		treasury: treasury,
		transfer: transfer,
		totals:   Totals{Collected: big.NewInt(0)},
	}
}

// Treasury returns the account accumulating platform fees.
func (s *Sink) Treasury() [20]byte {
	if s == nil {
		return [20]byte{}
	}
	return s.treasury
}

// Collect moves the fee from the custody account into the treasury and
// records it. A zero or negative fee is a no-op.
func (s *Sink) Collect(from [20]byte, amount *big.Int) error {
	if s == nil || s.transfer == nil {
		return errNilTransfer
	}
	if s.treasury == ([20]byte{}) {
		return errNilTreasury
	}
	if from == s.treasury {
		return ErrSelfCollect
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if err := s.transfer.Transfer(from, s.treasury, amount); err != nil {
		return err
	}
	s.mu.Lock()
	s.totals.Collected = new(big.Int).Add(s.totals.Collected, amount)
	s.totals.Deposits++
	s.mu.Unlock()
	return nil
}

// Totals returns a snapshot of the accumulated platform take.
func (s *Sink) Totals() Totals {
	if s == nil {
		return Totals{Collected: big.NewInt(0)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals.Clone()
}
