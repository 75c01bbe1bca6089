package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/equity_backend/config"
	"github.com/mmdatafocus/equity_backend/metrics"
	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("equity_backend/workflow")

type DailyReportInput struct {
	BusinessId string
	Date       string
	Income     decimal.Decimal
	Expense    decimal.Decimal
	PoolTaken  decimal.Decimal
}

func (in DailyReportInput) Validate() error {
	if in.BusinessId == "" || in.Date == "" {
		return ErrInvalidReport
	}
	return nil
}

type DailyReportResult struct {
	Month       *string
	Profit      decimal.Decimal
	Schema      models.SchemaCandidate
	PoolUpdated bool
	Pool        *models.CompanyMoneyPool
}

// DeriveMonth returns the YYYY-MM prefix of a dashed date, or nil when date has no dash.
func DeriveMonth(date string) *string {
	if !strings.Contains(date, "-") {
		return nil
	}
	month := date
	if len(month) > 7 {
		month = month[:7]
	}
	return &month
}

type ReportRecorder struct {
	Store  Store
	Logger *logrus.Logger
	Events EventPublisher

	// AtomicPoolDebit records the report and debits the pool in one transaction.
	AtomicPoolDebit bool
}

func NewReportRecorder(store Store, logger *logrus.Logger, events EventPublisher) *ReportRecorder {
	return &ReportRecorder{
		Store:           store,
		Logger:          logger,
		Events:          events,
		AtomicPoolDebit: config.ReportPoolDebitAtomic(),
	}
}

// Record stores a daily report and, when pool_taken is positive, takes it out of layer 1 of the money pool.
func (r *ReportRecorder) Record(ctx context.Context, in DailyReportInput) (result *DailyReportResult, err error) {
	ctx, span := tracer.Start(ctx, "ReportRecorder.Record")
	defer span.End()
	span.SetAttributes(attribute.String("business_id", in.BusinessId))
	defer func() {
		switch {
		case err == nil:
			metrics.RecordDailyReport(metrics.ResultOK)
		case IsRejection(err):
			metrics.RecordDailyReport(metrics.ResultRejected)
		default:
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordDailyReport(metrics.ResultError)
		}
	}()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	report := models.NewReport{
		BusinessId: in.BusinessId,
		Date:       in.Date,
		Month:      DeriveMonth(in.Date),
		Income:     in.Income,
		Expense:    in.Expense,
		PoolTaken:  in.PoolTaken,
		Profit:     in.Income.Sub(in.Expense),
	}
	result = &DailyReportResult{Month: report.Month, Profit: report.Profit}
	debit := in.PoolTaken.IsPositive()

	if debit && r.AtomicPoolDebit {
		err = r.Store.InTx(ctx, func(tx Store) error {
			schema, err := tx.InsertReport(ctx, report)
			if err != nil {
				return &ReportInsertError{Err: err}
			}
			result.Schema = schema
			pool, err := r.debit(ctx, tx, in.PoolTaken)
			if err != nil {
				return err
			}
			result.Pool = pool
			result.PoolUpdated = pool != nil
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		schema, err := r.Store.InsertReport(ctx, report)
		if err != nil {
			return nil, &ReportInsertError{Err: err}
		}
		result.Schema = schema

		if debit {
			err = r.Store.InTx(ctx, func(tx Store) error {
				pool, err := r.debit(ctx, tx, in.PoolTaken)
				result.Pool = pool
				return err
			})
			switch {
			case errors.Is(err, ErrPoolInsufficient):
				// The report stays recorded; the caller still learns the pool could not cover it.
				return nil, err
			case err != nil:
				if r.Logger != nil {
					config.LogError(r.Logger, "ReportRecorder", "Record", "best-effort pool debit", in, err)
				}
				result.Pool = nil
			}
			result.PoolUpdated = result.Pool != nil
		}
	}

	if result.PoolUpdated {
		metrics.RecordPoolDebit("daily_report")
	}
	publishBestEffort(ctx, r.Events, r.Logger, newLedgerEvent(ctx, EventDailyReportRecorded, map[string]any{
		"business_id":  in.BusinessId,
		"date":         in.Date,
		"month":        result.Month,
		"income":       in.Income,
		"expense":      in.Expense,
		"pool_taken":   in.PoolTaken,
		"profit":       result.Profit,
		"schema":       result.Schema.Version,
		"pool_updated": result.PoolUpdated,
	}))
	return result, nil
}

// debit returns a nil snapshot when the pool has never been funded.
func (r *ReportRecorder) debit(ctx context.Context, tx Store, amount decimal.Decimal) (*models.CompanyMoneyPool, error) {
	pool, err := DebitMoneyPool(ctx, tx, amount)
	switch {
	case errors.Is(err, ErrMoneyPoolEmpty):
		return nil, nil
	case errors.Is(err, ErrInsufficientCash):
		return nil, ErrPoolInsufficient
	case err != nil:
		return nil, err
	}
	return pool, nil
}
