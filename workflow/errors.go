package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/equity_backend/models"
)

// Rejections: the request is well-formed infrastructure-wise but violates a rule.
var (
	ErrInvalidReport      = errors.New("business_id and date required")
	ErrInvalidNumbers     = errors.New("invalid numbers")
	ErrInvalidSaleInput   = errors.New("invalid input")
	ErrInvalidShares      = errors.New("invalid shares")
	ErrInsufficientShares = errors.New("not enough shares")
	ErrInsufficientCash   = errors.New("company cash insufficient")
	ErrPoolInsufficient   = errors.New("pool insufficient")
	ErrIdempotencyReused  = errors.New("idempotency key reused")
)

// Failures: missing configuration rows or the database misbehaving.
var (
	ErrLedgerQuery         = errors.New("ledger query failed")
	ErrCompanyValueMissing = errors.New("company value not found")
	ErrShareConfigMissing  = errors.New("share config not found")
	ErrInvalidSharePrice   = errors.New("invalid share price")
	ErrMoneyPoolQuery      = errors.New("money pool query failed")
	ErrMoneyPoolEmpty      = errors.New("money pool empty")
	ErrLedgerWrite         = errors.New("failed to update ledger")
	ErrPoolWrite           = errors.New("failed to update money pool")
)

var rejections = []error{
	ErrInvalidReport,
	ErrInvalidNumbers,
	ErrInvalidSaleInput,
	ErrInvalidShares,
	ErrInsufficientShares,
	ErrInsufficientCash,
	ErrPoolInsufficient,
	ErrIdempotencyReused,
}

// IsRejection reports whether err is a validation or business-rule rejection (as opposed to a failure).
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ReportInsertError wraps the last database error after every report layout was refused.
type ReportInsertError struct {
	Err error
}

func (e *ReportInsertError) Error() string {
	return fmt.Sprintf("report insert failed: %v", e.Err)
}

func (e *ReportInsertError) Unwrap() error { return e.Err }

// Details is the database message surfaced to operators.
func (e *ReportInsertError) Details() string {
	if e.Err == nil {
		return ""
	}
	var fallbackErr *models.SchemaFallbackError
	if errors.As(e.Err, &fallbackErr) && fallbackErr.Err != nil {
		return fallbackErr.Err.Error()
	}
	return e.Err.Error()
}
