package services

import (
	"context"
	"fmt"

	"github.com/Quid-proquo/Quid/internal/repository"
)

// Token movement directions, used as the metrics label
const (
	DirectionDeposit = "deposit" // owner pool into escrow
	DirectionStake   = "stake"   // hunter stake into escrow
	DirectionPayout  = "payout"  // reward to hunter
	DirectionRefund  = "refund"  // pool or stake back to its depositor
	DirectionSlash   = "slash"   // stake to treasury
)

// Movement one transfer performed by an invocation
type Movement struct {
	Direction string
	Token     string
	From      string
	To        string
	Amount    int64
}

// Invocation transactional session of one engine call plus the funds it moved
type Invocation struct {
	repository.Session
	escrow    string
	movements []Movement
}

// NewInvocation binds a session to the escrow account
func NewInvocation(session repository.Session, escrow string) *Invocation {
	return &Invocation{Session: session, escrow: escrow}
}

// Escrow account holding every escrowed fund
func (inv *Invocation) Escrow() string {
	return inv.escrow
}

// Move transfers through the session's gateway; zero amounts are skipped
func (inv *Invocation) Move(ctx context.Context, direction, token, from, to string, amount int64) error {
	if amount == 0 {
		return nil
	}
	if err := inv.Tokens.Transfer(ctx, token, from, to, amount); err != nil {
		return fmt.Errorf("%s of %d %s: %w", direction, amount, token, err)
	}
	inv.movements = append(inv.movements, Movement{
		Direction: direction,
		Token:     token,
		From:      from,
		To:        to,
		Amount:    amount,
	})
	return nil
}

// Movements returns the transfers made so far
func (inv *Invocation) Movements() []Movement {
	return append([]Movement(nil), inv.movements...)
}
