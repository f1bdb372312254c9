package interfaces

import (
	"context"
	"errors"
)

// ErrInsufficientBalance returned by TokenGateway.Transfer when the sender cannot cover the amount
var ErrInsufficientBalance = errors.New("insufficient token balance")

// TokenGateway defines the fungible token collaborator used for every fund movement
// This interface lives here to break circular dependencies between clients, repository and services
type TokenGateway interface {
	// Transfer moves amount of asset from one account to another, atomically
	Transfer(ctx context.Context, asset, from, to string, amount int64) error
	// BalanceOf is a pure read
	BalanceOf(ctx context.Context, asset, account string) (int64, error)
}

// Checkpointer is implemented by gateways that can undo their own writes.
// The in-memory transactor uses it to roll token movements back together with records.
type Checkpointer interface {
	// Checkpoint captures current state and returns a function restoring it
	Checkpoint() (rollback func())
}
