package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"
)

// TreasuryRegistry singleton treasury address receiving slashed stakes
type TreasuryRegistry struct{}

// Set overwrites the treasury; last write wins.
// The escrow account is refused: slashing into it would drop the stake record and keep the funds.
func (TreasuryRegistry) Set(ctx context.Context, inv *Invocation, address, updatedBy string) error {
	if err := validatePrincipal("treasury address", address, inv.Escrow()); err != nil {
		return err
	}
	if err := inv.Store.PutSetting(ctx, models.SettingTreasury, address, updatedBy); err != nil {
		return fmt.Errorf("failed to store treasury: %w", err)
	}
	return nil
}

// Get returns the treasury or ErrTreasuryNotSet
func (TreasuryRegistry) Get(ctx context.Context, settings repository.SettingRepository) (string, error) {
	address, err := settings.GetSetting(ctx, models.SettingTreasury)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrTreasuryNotSet
		}
		return "", fmt.Errorf("failed to read treasury: %w", err)
	}
	return address, nil
}
