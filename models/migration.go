package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or extends the tables this service owns. On an existing
// company_money_pool the new prev_id column is nullable, so old rows keep NULL and the
// unique index builds without a backfill.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&CompanyMoneyPool{},
		&ShareLedgerEntry{},
		&CompanyLiveValue{},
		&CompanySharesConfig{},
		&Report{},
		&Employee{},
		&IdempotencyKey{},
	)
}
