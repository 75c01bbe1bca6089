package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/equity_backend/metrics"
	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type SaleInput struct {
	EmployeeId string
	// Shares is nil when the request did not carry a value.
	Shares *decimal.Decimal
	// IdempotencyKey, when set, makes a retried sale replay the first result.
	IdempotencyKey string
}

func (in SaleInput) Validate() error {
	if in.EmployeeId == "" || in.Shares == nil || len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return ErrInvalidSaleInput
	}
	if !in.Shares.IsPositive() {
		return ErrInvalidShares
	}
	return nil
}

type SaleResult struct {
	SoldShares decimal.Decimal
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Entry      *models.ShareLedgerEntry
	Pool       *models.CompanyMoneyPool
	// Replayed is set when the result comes from an earlier request with the same key.
	Replayed bool
}

type ShareSaleProcessor struct {
	Store  Store
	Logger *logrus.Logger
	Events EventPublisher
}

func NewShareSaleProcessor(store Store, logger *logrus.Logger, events EventPublisher) *ShareSaleProcessor {
	return &ShareSaleProcessor{Store: store, Logger: logger, Events: events}
}

// Sell converts an employee's unlocked shares into cash from layer 1 of the money pool.
// The ledger entry and the pool snapshot are appended together or not at all.
func (p *ShareSaleProcessor) Sell(ctx context.Context, in SaleInput) (result *SaleResult, err error) {
	ctx, span := tracer.Start(ctx, "ShareSaleProcessor.Sell")
	defer span.End()
	span.SetAttributes(attribute.String("employee_id", in.EmployeeId))
	defer func() {
		switch {
		case err == nil:
			metrics.RecordShareSale(metrics.ResultOK)
		case IsRejection(err):
			metrics.RecordShareSale(metrics.ResultRejected)
		default:
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordShareSale(metrics.ResultError)
		}
	}()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	shares := *in.Shares

	err = p.Store.InTx(ctx, func(tx Store) error {
		if in.IdempotencyKey != "" {
			prior, err := replaySale(ctx, tx, in)
			if err != nil {
				return err
			}
			if prior != nil {
				result = prior
				return nil
			}
		}

		entries, err := tx.ListShareEntries(ctx, in.EmployeeId)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerQuery, err)
		}
		if shares.GreaterThan(models.AvailableShares(entries)) {
			return ErrInsufficientShares
		}

		price, err := CurrentSharePrice(ctx, tx)
		if err != nil {
			return err
		}
		amount := shares.Mul(price)

		latest, err := tx.LatestMoneyPool(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMoneyPoolQuery, err)
		}
		next, err := planDebit(latest, amount)
		if err != nil {
			return err
		}

		entry := &models.ShareLedgerEntry{
			EmployeeId: in.EmployeeId,
			Shares:     shares.Neg(),
			Locked:     false,
		}
		if err := tx.AppendShareEntry(ctx, entry); err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
		}
		if err := tx.AppendMoneyPool(ctx, &next); err != nil {
			return fmt.Errorf("%w: %w", ErrPoolWrite, err)
		}

		result = &SaleResult{
			SoldShares: shares,
			Price:      price,
			Amount:     amount,
			Entry:      entry,
			Pool:       &next,
		}
		if in.IdempotencyKey != "" {
			if err := rememberSale(ctx, tx, in, result); err != nil {
				return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		span.SetAttributes(attribute.Bool("replayed", true))
		return result, nil
	}

	metrics.RecordPoolDebit("share_sale")
	publishBestEffort(ctx, p.Events, p.Logger, newLedgerEvent(ctx, EventShareSold, map[string]any{
		"employee_id":   in.EmployeeId,
		"shares":        result.SoldShares,
		"price":         result.Price,
		"amount":        result.Amount,
		"layer1_amount": result.Pool.Layer1Amount,
		"layer2_amount": result.Pool.Layer2Amount,
		"prev_id":       result.Pool.PrevId,
	}))
	return result, nil
}

// ShareHolding is an employee's share balance valued at the current price.
type ShareHolding struct {
	EmployeeId string
	Balance    models.ShareBalance
	Price      *decimal.Decimal
	Value      *decimal.Decimal
}

// Holding reads an employee's balance. Price and Value stay nil when the company valuation is not configured.
func (p *ShareSaleProcessor) Holding(ctx context.Context, employeeId string) (*ShareHolding, error) {
	entries, err := p.Store.ListShareEntries(ctx, employeeId)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerQuery, err)
	}
	holding := &ShareHolding{
		EmployeeId: employeeId,
		Balance:    models.SummarizeShares(entries),
	}
	price, err := CurrentSharePrice(ctx, p.Store)
	if err != nil {
		if p.Logger != nil {
			p.Logger.WithError(err).WithField("employee_id", employeeId).Debug("share price unavailable")
		}
		return holding, nil
	}
	value := holding.Balance.Available.Mul(price)
	holding.Price = &price
	holding.Value = &value
	return holding, nil
}
