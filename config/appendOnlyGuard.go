package config

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrAppendOnlyTable is returned when an UPDATE or DELETE targets a ledger table.
var ErrAppendOnlyTable = errors.New("table is append-only")

// AppendOnlyTables are the ledgers whose history must never be rewritten.
// The current balance is always derived from the rows, so an edited row would silently change it.
var AppendOnlyTables = map[string]struct{}{
	"company_money_pool": {},
	"shares_ledger":      {},
}

// AppendOnlyGuardPlugin rejects gorm Update/Delete statements on AppendOnlyTables.
//
// NOTE:
// - This does NOT apply to Raw/Exec SQL. Operators repairing data do so explicitly.
type AppendOnlyGuardPlugin struct{}

func NewAppendOnlyGuardPlugin() *AppendOnlyGuardPlugin { return &AppendOnlyGuardPlugin{} }

func (p *AppendOnlyGuardPlugin) Name() string { return "append_only_guard" }

func (p *AppendOnlyGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("append_only_guard:update", appendOnlyGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("append_only_guard:delete", appendOnlyGuardCallback); err != nil {
		return err
	}
	return nil
}

func appendOnlyGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	table := db.Statement.Table
	if table == "" && db.Statement.Schema != nil {
		table = db.Statement.Schema.Table
	}
	if _, ok := AppendOnlyTables[table]; ok {
		_ = db.AddError(fmt.Errorf("%w: %s", ErrAppendOnlyTable, table))
	}
}
