package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNegativePoolAmount = errors.New("money pool amounts cannot be negative")
	// ErrPoolSnapshotConflict means another writer already appended a successor to the same snapshot.
	ErrPoolSnapshotConflict = errors.New("money pool snapshot already has a successor")
)

// CompanyMoneyPool is one snapshot of the company cash pool.
// Rows are only ever appended; the latest row by created_at is the current balance.
// PrevId is the snapshot a debit was computed from. It is unique, so a snapshot has at most
// one successor. Rows written outside this service (funding) leave it NULL.
type CompanyMoneyPool struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PrevId       *int            `gorm:"uniqueIndex:uniq_money_pool_prev" json:"prev_id"`
	Layer1Amount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"layer1_amount"`
	Layer2Amount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"layer2_amount"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

const moneyPoolTable = "company_money_pool"

func (CompanyMoneyPool) TableName() string {
	return moneyPoolTable
}

// Next returns the snapshot that follows p after taking amount out of layer 1.
// Layer 2 is carried over unchanged.
func (p CompanyMoneyPool) Next(amount decimal.Decimal) CompanyMoneyPool {
	prevId := p.ID
	return CompanyMoneyPool{
		PrevId:       &prevId,
		Layer1Amount: p.Layer1Amount.Sub(amount),
		Layer2Amount: p.Layer2Amount,
	}
}

func (p CompanyMoneyPool) Validate() error {
	if p.Layer1Amount.IsNegative() || p.Layer2Amount.IsNegative() {
		return ErrNegativePoolAmount
	}
	return nil
}

// GetLatestMoneyPool returns the most recent snapshot, or nil when the pool has no rows.
func GetLatestMoneyPool(ctx context.Context, db *gorm.DB) (*CompanyMoneyPool, error) {
	var rows []CompanyMoneyPool
	if err := db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreateMoneyPoolSnapshot appends snapshot. Prior rows are never touched.
func CreateMoneyPoolSnapshot(ctx context.Context, db *gorm.DB, snapshot *CompanyMoneyPool) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(snapshot).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return ErrPoolSnapshotConflict
		}
		return err
	}
	return nil
}
