package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"mailbond/storage"
)

// ErrInsufficientBalance is returned when a transfer would overdraw the
// source account. No partial transfer happens.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

const balanceKeyPrefix = "ledger/balance/"

// Bank is a minimal transferable-balance store. The reward engine escrows
// value by moving it into a dedicated vault account and pays out by moving
// it back out. Each transfer is atomic: balances are read, checked and
// written under one lock.
type Bank struct {
	mu    sync.Mutex
	db    storage.Database
	vault [20]byte
}

// NewBank creates a bank whose escrowed funds accumulate in vault.
func NewBank(db storage.Database, vault [20]byte) (*Bank, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	if vault == ([20]byte{}) {
		return nil, fmt.Errorf("ledger: vault address required")
	}
	return &Bank{db: db, vault: vault}, nil
}

// Vault returns the address holding escrowed funds.
func (b *Bank) Vault() [20]byte { return b.vault }

// Balance returns the current balance of an account.
func (b *Bank) Balance(addr [20]byte) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(addr)
}

// Mint credits an account, used at bring-up and in tests to seed balances.
func (b *Bank) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: mint amount must be non-negative")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.balance(addr)
	return b.setBalance(addr, new(big.Int).Add(balance, amount))
}

// TransferInto moves amount from the account into the vault.
func (b *Bank) TransferInto(from [20]byte, amount *big.Int) error {
	return b.transfer(from, b.vault, amount)
}

// TransferOut moves amount from the vault to the account.
func (b *Bank) TransferOut(to [20]byte, amount *big.Int) error {
	return b.transfer(b.vault, to, amount)
}

func (b *Bank) transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromBalance := b.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance := b.balance(to)
	if err := b.setBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := b.setBalance(to, new(big.Int).Add(toBalance, amount)); err != nil {
		// Restore the debited side so the transfer stays all-or-nothing.
		_ = b.setBalance(from, fromBalance)
		return err
	}
	return nil
}

func balanceKey(addr [20]byte) []byte {
	return append([]byte(balanceKeyPrefix), addr[:]...)
}

func (b *Bank) balance(addr [20]byte) *big.Int {
	raw, err := b.db.Get(balanceKey(addr))
	if err != nil {
		return big.NewInt(0)
	}
	value, ok := new(big.Int).SetString(string(raw), 10)
	if !ok || value.Sign() < 0 {
		return big.NewInt(0)
	}
	return value
}

func (b *Bank) setBalance(addr [20]byte, value *big.Int) error {
	if err := b.db.Put(balanceKey(addr), []byte(value.String())); err != nil {
		return fmt.Errorf("ledger: persist balance for %s: %w", hex.EncodeToString(addr[:]), err)
	}
	return nil
}
