package db

import (
	"context"
	"database/sql"
	"fmt"
)

// EscrowTotals expected escrow per token, split by origin
type EscrowTotals struct {
	Token   string
	Rewards int64 // remaining reward slots of non-cancelled missions
	Stakes  int64 // live stake records
}

// Expected total the escrow account should hold for the token
func (t EscrowTotals) Expected() int64 {
	return t.Rewards + t.Stakes
}

// ReadEscrowTotals recomputes escrow per token with plain SQL.
// It is independent of the gorm repositories so the audit can cross-check them.
func ReadEscrowTotals(ctx context.Context, sqlDB *sql.DB) (map[string]*EscrowTotals, error) {
	totals := make(map[string]*EscrowTotals)
	get := func(token string) *EscrowTotals {
		t, ok := totals[token]
		if !ok {
			t = &EscrowTotals{Token: token}
			totals[token] = t
		}
		return t
	}

	rows, err := sqlDB.QueryContext(ctx, `
		SELECT reward_token, COALESCE(SUM(reward_amount * (max_participants - participants_count)), 0)
		FROM missions
		WHERE status <> 'cancelled'
		GROUP BY reward_token
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum mission escrow: %w", err)
	}
	for rows.Next() {
		var token string
		var amount int64
		if err := rows.Scan(&token, &amount); err != nil {
			rows.Close()
			return nil, err
		}
		get(token).Rewards = amount
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = sqlDB.QueryContext(ctx, `
		SELECT token, COALESCE(SUM(amount), 0)
		FROM stakes
		GROUP BY token
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum stake escrow: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var token string
		var amount int64
		if err := rows.Scan(&token, &amount); err != nil {
			return nil, err
		}
		get(token).Stakes = amount
	}
	return totals, rows.Err()
}
