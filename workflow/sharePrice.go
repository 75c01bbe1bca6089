package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
)

// CurrentSharePrice is company value divided by total shares.
func CurrentSharePrice(ctx context.Context, store Store) (decimal.Decimal, error) {
	value, err := store.CompanyLiveValue(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrCompanyValueMissing, err)
	}
	if value == nil {
		return decimal.Zero, ErrCompanyValueMissing
	}

	cfg, err := store.CompanySharesConfig(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrShareConfigMissing, err)
	}
	if cfg == nil {
		return decimal.Zero, ErrShareConfigMissing
	}

	price, ok := models.SharePrice(value.CompanyValue, cfg.TotalShares)
	if !ok {
		return decimal.Zero, ErrShareConfigMissing
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidSharePrice
	}
	return price, nil
}
