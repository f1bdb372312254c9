package services

import (
	"context"
	"fmt"

	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/models"
)

// AssetGate eligibility predicate for gated missions
type AssetGate struct{}

// Allows reports whether principal may submit to mission.
// Ungated missions allow everyone; gated ones need balance >= threshold.
// A failed balance query is returned as an error, never as a denial.
func (AssetGate) Allows(ctx context.Context, tokens interfaces.TokenGateway, mission *models.Mission, principal string) (bool, error) {
	if !mission.IsGated() {
		return true, nil
	}
	balance, err := tokens.BalanceOf(ctx, *mission.MinAssetToken, principal)
	if err != nil {
		return false, fmt.Errorf("failed to read gating balance: %w", err)
	}
	return balance >= mission.MinAssetAmount, nil
}
