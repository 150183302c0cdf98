package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"vertix/core/types"
	"vertix/storage"
)

var (
	accountPrefix = []byte("acct/")

	errNilDatabase = errors.New("state: database not configured")
	// ErrInsufficientBalance rejects a transfer exceeding the payer's funds.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// Ledger is the canonical settlement state: accounts, escrow records,
// participant indexes and registry data, all stored in a key-value backend.
// Mutations are journaled so an enclosing transition can be reverted
// all-or-nothing; the escrow engine snapshots at every entry point and rolls
// back on any failure, including a failed outbound payment leg.
type Ledger struct {
	mu      sync.RWMutex
	db      storage.Database
	journal []journalEntry
	open    []int
}

// NewLedger wraps the supplied database in a journaled ledger.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) rawGet(key []byte) ([]byte, bool, error) {
	value, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (l *Ledger) rawPut(key, value []byte) error {
	prev, existed, err := l.rawGet(key)
	if err != nil {
		return err
	}
	l.journal = append(l.journal, journalEntry{key: string(key), prev: prev, existed: existed})
	return l.db.Put(key, value)
}

// Snapshot returns a revision identifier for the current journal position
// and marks it open until it is reverted or discarded.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	revision := len(l.journal)
	l.open = append(l.open, revision)
	return revision
}

// RevertToSnapshot undoes every mutation recorded after the supplied
// revision, restoring the ledger to its state at Snapshot time.
func (l *Ledger) RevertToSnapshot(revision int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if revision < 0 || revision > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= revision; i-- {
		entry := l.journal[i]
		if entry.existed {
			_ = l.db.Put([]byte(entry.key), entry.prev)
		} else {
			_ = l.db.Delete([]byte(entry.key))
		}
	}
	l.journal = l.journal[:revision]
	for len(l.open) > 0 && l.open[len(l.open)-1] >= revision {
		l.open = l.open[:len(l.open)-1]
	}
}

// DiscardSnapshot commits the supplied revision (and any nested later ones).
// Once no snapshots remain open the undo history is dropped, so the journal
// never accumulates committed entries across the life of the process.
func (l *Ledger) DiscardSnapshot(revision int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.open) > 0 && l.open[len(l.open)-1] >= revision {
		l.open = l.open[:len(l.open)-1]
	}
	if len(l.open) == 0 {
		l.journal = l.journal[:0]
	}
}

// KVPut stores an RLP-encoded value under the supplied key.
func (l *Ledger) KVPut(key []byte, value interface{}) error {
	if l == nil || l.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rawPut(key, encoded)
}

// KVGet decodes the stored value into out, reporting whether the key exists.
func (l *Ledger) KVGet(key []byte, out interface{}) (bool, error) {
	if l == nil || l.db == nil {
		return false, errNilDatabase
	}
	l.mu.RLock()
	encoded, ok, err := l.rawGet(key)
	l.mu.RUnlock()
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte{}, accountPrefix...), addr[:]...)
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account for the address, returning a zero-balance
// account when none is stored yet.
func (l *Ledger) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := l.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	return types.EnsureAccount(&types.Account{Nonce: stored.Nonce, Balance: stored.Balance}), nil
}

// PutAccount persists the account record.
func (l *Ledger) PutAccount(addr [20]byte, acc *types.Account) error {
	acc = types.EnsureAccount(acc)
	if acc.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance for %x", addr)
	}
	return l.KVPut(accountKey(addr), &storedAccount{Nonce: acc.Nonce, Balance: acc.Balance})
}

// Transfer moves value between accounts, failing without side effects when
// the payer's balance is insufficient.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	fromAcc, err := l.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	// A self-transfer must not write: the two loaded copies would alias the
	// same record and the stale credit would overwrite the debit.
	if from == to {
		return nil
	}
	toAcc, err := l.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.PutAccount(to, toAcc)
}

// Mint credits freshly issued value to an account. Used by genesis wiring
// and tests; the engine itself never mints.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	acc, err := l.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.PutAccount(addr, acc)
}
