package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const reportsTable = "reports"

// ReportSchemaCandidates are the known layouts of the reports table, newest first.
var ReportSchemaCandidates = []SchemaCandidate{
	{Version: "v3", Columns: []string{"business_id", "report_date", "month", "income", "expense", "pool_taken", "profit"}},
	{Version: "v2", Columns: []string{"business_id", "month", "income", "expense", "profit"}},
	{Version: "v1", Columns: []string{"business_id", "income", "expense"}},
}

// Report is one daily financial report submission.
type Report struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;not null;index:idx_reports_biz_month,priority:1" json:"business_id"`
	ReportDate *time.Time      `gorm:"type:date" json:"report_date"`
	Month      *string         `gorm:"size:7;index:idx_reports_biz_month,priority:2" json:"month"`
	Income     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"income"`
	Expense    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"expense"`
	PoolTaken  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pool_taken"`
	Profit     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"profit"`
	CreatedAt  time.Time       `gorm:"type:datetime;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Report) TableName() string {
	return reportsTable
}

// NewReport is the submitted report before it is written.
// Date is kept as submitted; the database decides whether it is a valid date.
type NewReport struct {
	BusinessId string
	Date       string
	Month      *string
	Income     decimal.Decimal
	Expense    decimal.Decimal
	PoolTaken  decimal.Decimal
	Profit     decimal.Decimal
}

func (r NewReport) values() map[string]interface{} {
	var month interface{}
	if r.Month != nil {
		month = *r.Month
	}
	return map[string]interface{}{
		"business_id": r.BusinessId,
		"report_date": r.Date,
		"month":       month,
		"income":      r.Income,
		"expense":     r.Expense,
		"pool_taken":  r.PoolTaken,
		"profit":      r.Profit,
	}
}

// InsertReport writes report starting at candidate start, falling back to smaller
// layouts on schema mismatch. It returns the candidate that was accepted.
func InsertReport(ctx context.Context, db *gorm.DB, start int, report NewReport) (SchemaCandidate, error) {
	return writeWithFallback(reportsTable, ReportSchemaCandidates, start, report.values(), func(payload map[string]interface{}) error {
		return db.WithContext(ctx).Table(reportsTable).Create(payload).Error
	})
}

// ListReportsByMonth returns a business's reports for month (YYYY-MM), oldest first.
func ListReportsByMonth(ctx context.Context, db *gorm.DB, businessId string, month string) ([]Report, error) {
	var reports []Report
	if err := db.WithContext(ctx).
		Where("business_id = ? AND month = ?", businessId, month).
		Order("id").
		Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}
