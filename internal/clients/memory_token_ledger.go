package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Quid-proquo/Quid/internal/interfaces"

	gmath "github.com/ethereum/go-ethereum/common/math"
)

// ErrInvalidTransferAmount returned for non-positive transfer amounts
var ErrInvalidTransferAmount = errors.New("transfer amount must be positive")

// MemoryTokenLedger in-process fungible token ledger
// Used by tests and local runs; implements interfaces.Checkpointer so a failed invocation leaves no movement behind.
type MemoryTokenLedger struct {
	mu       sync.RWMutex
	balances map[string]map[string]int64 // asset -> account -> amount
}

// NewMemoryTokenLedger creates an empty ledger
func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{balances: make(map[string]map[string]int64)}
}

// Mint credits amount of asset to account
func (l *MemoryTokenLedger) Mint(asset, account string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidTransferAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(asset, account, amount)
}

// Transfer moves amount from one account to another
func (l *MemoryTokenLedger) Transfer(_ context.Context, asset, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidTransferAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts := l.balances[asset]
	if accounts[from] < amount {
		return fmt.Errorf("transfer %d %s from %s: %w", amount, asset, from, interfaces.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	accounts[from] -= amount
	return l.credit(asset, to, amount)
}

// BalanceOf returns the balance; unknown accounts hold zero
func (l *MemoryTokenLedger) BalanceOf(_ context.Context, asset, account string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[asset][account], nil
}

// Checkpoint snapshots every balance
func (l *MemoryTokenLedger) Checkpoint() func() {
	l.mu.RLock()
	snapshot := make(map[string]map[string]int64, len(l.balances))
	for asset, accounts := range l.balances {
		copied := make(map[string]int64, len(accounts))
		for account, amount := range accounts {
			copied[account] = amount
		}
		snapshot[asset] = copied
	}
	l.mu.RUnlock()

	return func() {
		l.mu.Lock()
		l.balances = snapshot
		l.mu.Unlock()
	}
}

func (l *MemoryTokenLedger) credit(asset, account string, amount int64) error {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[string]int64)
		l.balances[asset] = accounts
	}
	sum, overflow := gmath.SafeAdd(uint64(accounts[account]), uint64(amount))
	if overflow || sum > math.MaxInt64 {
		return fmt.Errorf("credit %d %s to %s: balance overflow", amount, asset, account)
	}
	accounts[account] = int64(sum)
	return nil
}
