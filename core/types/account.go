package types

import "math/big"

// Account is a ledger entry holding the native settlement currency. The
// escrow vault and the fee treasury are ordinary accounts addressed like any
// participant.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureAccount normalises a possibly nil account into a zero-balance one so
// callers can operate on it without nil checks.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
