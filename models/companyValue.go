package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrSingleRowMissing  = errors.New("expected exactly one row, found none")
	ErrSingleRowMultiple = errors.New("expected exactly one row, found several")
)

// CompanyLiveValue holds the current company valuation. Read-only for this service.
type CompanyLiveValue struct {
	ID           int             `gorm:"primary_key" json:"id"`
	CompanyValue decimal.Decimal `gorm:"type:decimal(24,4);not null" json:"company_value"`
}

func (CompanyLiveValue) TableName() string {
	return "company_live_value"
}

// CompanySharesConfig holds the number of issued shares. Read-only for this service.
type CompanySharesConfig struct {
	ID          int             `gorm:"primary_key" json:"id"`
	TotalShares decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_shares"`
}

func (CompanySharesConfig) TableName() string {
	return "company_shares_config"
}

// SharePrice is company value divided by total shares.
// A zero total has no price; callers treat it as missing configuration.
func SharePrice(companyValue, totalShares decimal.Decimal) (decimal.Decimal, bool) {
	if totalShares.IsZero() {
		return decimal.Zero, false
	}
	return companyValue.Div(totalShares), true
}

func GetCompanyLiveValue(ctx context.Context, db *gorm.DB) (*CompanyLiveValue, error) {
	return getSingleRow[CompanyLiveValue](ctx, db)
}

func GetCompanySharesConfig(ctx context.Context, db *gorm.DB) (*CompanySharesConfig, error) {
	return getSingleRow[CompanySharesConfig](ctx, db)
}

// getSingleRow reads a table that must hold exactly one row.
func getSingleRow[T any](ctx context.Context, db *gorm.DB) (*T, error) {
	var rows []T
	if err := db.WithContext(ctx).Limit(2).Find(&rows).Error; err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, ErrSingleRowMissing
	case 1:
		return &rows[0], nil
	default:
		var model T
		return nil, fmt.Errorf("%w: %T", ErrSingleRowMultiple, model)
	}
}
