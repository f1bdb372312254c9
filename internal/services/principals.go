package services

import (
	"fmt"
	"strings"

	"github.com/Quid-proquo/Quid/internal/models"
)

// validatePrincipal rejects blank and oversized principals, and the escrow account itself.
// A principal equal to the escrow would turn deposits into escrow->escrow no-ops.
func validatePrincipal(field, value, escrow string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%s is empty: %w", field, ErrInvalidMetadata)
	case len(value) > models.PrincipalSize:
		return fmt.Errorf("%s exceeds %d bytes: %w", field, models.PrincipalSize, ErrInvalidMetadata)
	case value == escrow:
		return fmt.Errorf("%s is the escrow account: %w", field, ErrInvalidMetadata)
	}
	return nil
}

func validateToken(field, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%s is empty: %w", field, ErrInvalidMetadata)
	case len(value) > models.PrincipalSize:
		return fmt.Errorf("%s exceeds %d bytes: %w", field, models.PrincipalSize, ErrInvalidMetadata)
	}
	return nil
}
