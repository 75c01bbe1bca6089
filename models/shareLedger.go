package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShareLedgerEntry is a signed share movement for an employee: grants are positive, sales negative.
type ShareLedgerEntry struct {
	ID         int             `gorm:"primary_key" json:"id"`
	EmployeeId string          `gorm:"size:64;not null;index" json:"employee_id"`
	Shares     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"shares"`
	Locked     bool            `gorm:"not null;default:false" json:"locked"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ShareLedgerEntry) TableName() string {
	return "shares_ledger"
}

// ShareBalance splits an employee's ledger into tradeable and locked totals.
type ShareBalance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// SummarizeShares sums entries into available (unlocked) and locked totals.
func SummarizeShares(entries []ShareLedgerEntry) ShareBalance {
	balance := ShareBalance{Available: decimal.Zero, Locked: decimal.Zero}
	for _, entry := range entries {
		if entry.Locked {
			balance.Locked = balance.Locked.Add(entry.Shares)
			continue
		}
		balance.Available = balance.Available.Add(entry.Shares)
	}
	return balance
}

// AvailableShares is the sum of unlocked entries; locked entries never count.
func AvailableShares(entries []ShareLedgerEntry) decimal.Decimal {
	return SummarizeShares(entries).Available
}

func ListShareLedgerEntries(ctx context.Context, db *gorm.DB, employeeId string) ([]ShareLedgerEntry, error) {
	var entries []ShareLedgerEntry
	if err := db.WithContext(ctx).
		Where("employee_id = ?", employeeId).
		Order("id").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func CreateShareLedgerEntry(ctx context.Context, db *gorm.DB, entry *ShareLedgerEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}
