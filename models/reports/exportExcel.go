package reports

import (
	"fmt"
	"io"

	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName       = "Sheet1"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var monthlyHeadings = []string{"Date", "Month", "Income", "Expense", "PoolTaken", "Profit"}

// MonthlyReportTotals sums the money columns of a month of reports.
type MonthlyReportTotals struct {
	Income    decimal.Decimal
	Expense   decimal.Decimal
	PoolTaken decimal.Decimal
	Profit    decimal.Decimal
}

func SumMonthlyReports(data []models.Report) MonthlyReportTotals {
	totals := MonthlyReportTotals{
		Income:    decimal.Zero,
		Expense:   decimal.Zero,
		PoolTaken: decimal.Zero,
		Profit:    decimal.Zero,
	}
	for _, d := range data {
		totals.Income = totals.Income.Add(d.Income)
		totals.Expense = totals.Expense.Add(d.Expense)
		totals.PoolTaken = totals.PoolTaken.Add(d.PoolTaken)
		totals.Profit = totals.Profit.Add(d.Profit)
	}
	return totals
}

// BuildMonthlyReportWorkbook lays out one row per report followed by a totals row.
func BuildMonthlyReportWorkbook(data []models.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	for i, h := range monthlyHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	rowNo := 2
	for _, d := range data {
		date := ""
		if d.ReportDate != nil {
			date = d.ReportDate.Format("2006-01-02")
		}
		month := ""
		if d.Month != nil {
			month = *d.Month
		}
		if err := setRow(f, rowNo, date, month, d.Income.InexactFloat64(), d.Expense.InexactFloat64(), d.PoolTaken.InexactFloat64(), d.Profit.InexactFloat64()); err != nil {
			return nil, err
		}
		rowNo++
	}

	totals := SumMonthlyReports(data)
	if err := setRow(f, rowNo, "Total", "", totals.Income.InexactFloat64(), totals.Expense.InexactFloat64(), totals.PoolTaken.InexactFloat64(), totals.Profit.InexactFloat64()); err != nil {
		return nil, err
	}
	return f, nil
}

func setRow(f *excelize.File, rowNo int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &values)
}

// WriteMonthlyReport streams the workbook for a business month to w.
func WriteMonthlyReport(w io.Writer, data []models.Report) error {
	f, err := BuildMonthlyReportWorkbook(data)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func MonthlyReportFilename(businessId string, month string) string {
	return fmt.Sprintf("reports_%s_%s.xlsx", businessId, month)
}
