package clients

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Quid-proquo/Quid/internal/interfaces"
)

func TestMemoryTokenLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryTokenLedger()
	if err := ledger.Mint("USDC", "alice", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.Transfer(ctx, "USDC", "alice", "bob", 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	alice, _ := ledger.BalanceOf(ctx, "USDC", "alice")
	bob, _ := ledger.BalanceOf(ctx, "USDC", "bob")
	if alice != 60 || bob != 40 {
		t.Fatalf("expected 60/40, got %d/%d", alice, bob)
	}

	err := ledger.Transfer(ctx, "USDC", "bob", "alice", 41)
	if !errors.Is(err, interfaces.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(ctx, "USDC", "alice", "bob", 0); !errors.Is(err, ErrInvalidTransferAmount) {
		t.Fatalf("expected ErrInvalidTransferAmount, got %v", err)
	}
	if b, _ := ledger.BalanceOf(ctx, "EURC", "alice"); b != 0 {
		t.Fatalf("expected zero for unknown asset, got %d", b)
	}
}

func TestMemoryTokenLedgerOverflow(t *testing.T) {
	ledger := NewMemoryTokenLedger()
	if err := ledger.Mint("USDC", "alice", math.MaxInt64); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint("USDC", "alice", 1); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestMemoryTokenLedgerCheckpoint(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryTokenLedger()
	_ = ledger.Mint("USDC", "alice", 100)

	rollback := ledger.Checkpoint()
	if err := ledger.Transfer(ctx, "USDC", "alice", "bob", 100); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	_ = ledger.Mint("EURC", "carol", 5)
	rollback()

	alice, _ := ledger.BalanceOf(ctx, "USDC", "alice")
	bob, _ := ledger.BalanceOf(ctx, "USDC", "bob")
	carol, _ := ledger.BalanceOf(ctx, "EURC", "carol")
	if alice != 100 || bob != 0 || carol != 0 {
		t.Fatalf("expected checkpoint state, got %d/%d/%d", alice, bob, carol)
	}
}
