package ledger

import (
	"sync"

	"affiliate-vault/internal/domain"
)

// Asset is the balance-bearing token the vault custodies. The ledger
// re-reads BalanceOf inside its execute critical section; implementations
// must be safe for concurrent use.
type Asset interface {
	// BalanceOf returns the holder's current balance.
	BalanceOf(holder domain.Address) float64

	// Transfer moves amount from one holder to another. It fails if the
	// sender's balance is below amount.
	Transfer(from, to domain.Address, amount float64) error
}

// MemoryAsset is an in-memory Asset for the simulated vault.
type MemoryAsset struct {
	mu       sync.RWMutex
	balances map[domain.Address]float64
}

// NewMemoryAsset creates an asset with the given initial balances.
func NewMemoryAsset(initial map[domain.Address]float64) *MemoryAsset {
	balances := make(map[domain.Address]float64, len(initial))
	for holder, amount := range initial {
		balances[holder] = amount
	}
	return &MemoryAsset{balances: balances}
}

// Compile-time interface check.
var _ Asset = (*MemoryAsset)(nil)

// BalanceOf returns the holder's balance, 0 for unknown holders.
func (a *MemoryAsset) BalanceOf(holder domain.Address) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balances[holder]
}

// Transfer moves amount between holders.
func (a *MemoryAsset) Transfer(from, to domain.Address, amount float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balances[from] < amount {
		return errInsufficientFunds
	}
	a.balances[from] -= amount
	a.balances[to] += amount
	return nil
}

// Mint credits a holder. Test and simulation helper.
func (a *MemoryAsset) Mint(holder domain.Address, amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[holder] += amount
}
