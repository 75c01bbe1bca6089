package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
)

// planDebit returns the snapshot that takes amount out of layer 1 of latest.
func planDebit(latest *models.CompanyMoneyPool, amount decimal.Decimal) (models.CompanyMoneyPool, error) {
	if latest == nil {
		return models.CompanyMoneyPool{}, ErrMoneyPoolEmpty
	}
	if amount.GreaterThan(latest.Layer1Amount) {
		return models.CompanyMoneyPool{}, ErrInsufficientCash
	}
	return latest.Next(amount), nil
}

// DebitMoneyPool reads the latest snapshot and appends one with layer 1 reduced by amount.
// It must run inside Store.InTx so the read and the append see the same balance.
func DebitMoneyPool(ctx context.Context, tx Store, amount decimal.Decimal) (*models.CompanyMoneyPool, error) {
	latest, err := tx.LatestMoneyPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMoneyPoolQuery, err)
	}
	next, err := planDebit(latest, amount)
	if err != nil {
		return nil, err
	}
	if err := tx.AppendMoneyPool(ctx, &next); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoolWrite, err)
	}
	return &next, nil
}
