package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerTokenGateway token ledger kept in the token_balances table
// Bound to a transaction it moves funds atomically with the escrow records.
type LedgerTokenGateway struct {
	db *gorm.DB
}

// NewLedgerTokenGateway creates a gateway over db (a *gorm.DB or an open transaction)
func NewLedgerTokenGateway(db *gorm.DB) *LedgerTokenGateway {
	return &LedgerTokenGateway{db: db}
}

// Transfer debits from under a row lock and credits to
func (g *LedgerTokenGateway) Transfer(ctx context.Context, asset, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidTransferAmount
	}

	var sender models.TokenBalance
	err := g.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND account = ?", asset, from).
		First(&sender).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load balance of %s: %w", from, err)
	}
	if sender.Amount < amount {
		return fmt.Errorf("transfer %d %s from %s: %w", amount, asset, from, interfaces.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}

	if err := g.db.WithContext(ctx).
		Model(&models.TokenBalance{}).
		Where("asset = ? AND account = ?", asset, from).
		Updates(map[string]interface{}{
			"amount":     gorm.Expr("amount - ?", amount),
			"updated_at": time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}

	return g.Credit(ctx, asset, to, amount)
}

// Credit adds amount to account, creating the row when missing.
// Used by Transfer and by seeding tools; it does not debit anyone.
func (g *LedgerTokenGateway) Credit(ctx context.Context, asset, account string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidTransferAmount
	}
	row := models.TokenBalance{
		Asset:     asset,
		Account:   account,
		Amount:    amount,
		UpdatedAt: time.Now(),
	}
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "asset"}, {Name: "account"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"amount":     gorm.Expr("token_balances.amount + ?", amount),
				"updated_at": row.UpdatedAt,
			}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}
	return nil
}

// BalanceOf returns zero for accounts without a row
func (g *LedgerTokenGateway) BalanceOf(ctx context.Context, asset, account string) (int64, error) {
	var balance models.TokenBalance
	err := g.db.WithContext(ctx).
		Where("asset = ? AND account = ?", asset, account).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance of %s: %w", account, err)
	}
	return balance.Amount, nil
}

// GatewayFactory binds a LedgerTokenGateway to each transaction
func GatewayFactory(tx *gorm.DB) interfaces.TokenGateway {
	return NewLedgerTokenGateway(tx)
}
