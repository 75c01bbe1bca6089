package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
)

const (
	saleIdempotencyScope = "sell-shares"
	maxIdempotencyKeyLen = 255
)

type saleOutcome struct {
	EmployeeId string          `json:"employee_id"`
	SoldShares decimal.Decimal `json:"sold_shares"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
}

// saleFingerprint identifies the request body a key was first used with.
func saleFingerprint(employeeId string, shares decimal.Decimal) string {
	sum := sha256.Sum256([]byte(employeeId + "|" + shares.String()))
	return hex.EncodeToString(sum[:])
}

// replaySale returns the recorded result for in.IdempotencyKey, or nil when the key is new.
// Must run inside InTx so a concurrent request with the same key waits for the first to commit.
func replaySale(ctx context.Context, tx Store, in SaleInput) (*SaleResult, error) {
	prior, err := tx.FindIdempotencyKey(ctx, saleIdempotencyScope, in.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerQuery, err)
	}
	if prior == nil {
		return nil, nil
	}
	if prior.Fingerprint != saleFingerprint(in.EmployeeId, *in.Shares) {
		return nil, ErrIdempotencyReused
	}
	var outcome saleOutcome
	if err := json.Unmarshal([]byte(prior.Response), &outcome); err != nil {
		return nil, fmt.Errorf("%w: decode idempotency record: %w", ErrLedgerQuery, err)
	}
	return &SaleResult{
		SoldShares: outcome.SoldShares,
		Price:      outcome.Price,
		Amount:     outcome.Amount,
		Replayed:   true,
	}, nil
}

func rememberSale(ctx context.Context, tx Store, in SaleInput, result *SaleResult) error {
	body, err := json.Marshal(saleOutcome{
		EmployeeId: in.EmployeeId,
		SoldShares: result.SoldShares,
		Price:      result.Price,
		Amount:     result.Amount,
	})
	if err != nil {
		return err
	}
	return tx.SaveIdempotencyKey(ctx, &models.IdempotencyKey{
		Scope:       saleIdempotencyScope,
		RequestKey:  in.IdempotencyKey,
		Fingerprint: saleFingerprint(in.EmployeeId, *in.Shares),
		Response:    string(body),
	})
}
