package workflow

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func cents(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}

func TestReportPoolDebitProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("pool_taken within layer1 reduces layer1 by exactly pool_taken", prop.ForAll(
		func(layer1, layer2, taken int64) bool {
			if taken > layer1 {
				taken = layer1
			}
			store := newMemStore().withPool(cents(layer1).String(), cents(layer2).String())
			recorder := &ReportRecorder{Store: store, AtomicPoolDebit: true}

			result, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b", Date: "2024-01-01", PoolTaken: cents(taken)})
			if err != nil {
				return false
			}
			reports, pools, _ := store.counts()
			if taken == 0 {
				return reports == 1 && pools == 1 && !result.PoolUpdated
			}
			latest := store.latestPool()
			return reports == 1 && pools == 2 && result.PoolUpdated &&
				latest.Layer1Amount.Equal(cents(layer1-taken)) &&
				latest.Layer2Amount.Equal(cents(layer2))
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestShareSaleProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a sale either appends one entry and one snapshot or changes nothing", prop.ForAll(
		func(unlocked, locked, requested, layer1 int64) bool {
			store := newMemStore().
				withValuation("1000000", "10000").
				withPool(cents(layer1).String(), "7").
				withShares("emp", cents(unlocked).String(), false).
				withShares("emp", cents(locked).String(), true)
			processor := &ShareSaleProcessor{Store: store}

			shares := cents(requested)
			amount := shares.Mul(decimal.NewFromInt(100))
			result, err := processor.Sell(context.Background(), SaleInput{EmployeeId: "emp", Shares: &shares})

			_, pools, entries := store.counts()
			switch {
			case shares.GreaterThan(cents(unlocked)):
				return err == ErrInsufficientShares && pools == 1 && entries == 2
			case amount.GreaterThan(cents(layer1)):
				return err == ErrInsufficientCash && pools == 1 && entries == 2
			}
			if err != nil || pools != 2 || entries != 3 {
				return false
			}
			latest := store.latestPool()
			return result.Amount.Equal(amount) &&
				store.shares[2].Shares.Equal(shares.Neg()) && !store.shares[2].Locked &&
				latest.Layer1Amount.Equal(cents(layer1).Sub(amount)) &&
				latest.Layer2Amount.Equal(decimal.NewFromInt(7))
		},
		gen.Int64Range(0, 50_000),
		gen.Int64Range(0, 50_000),
		gen.Int64Range(1, 60_000),
		gen.Int64Range(0, 5_000_000),
	))

	properties.Property("non-positive requests never touch the store", prop.ForAll(
		func(requested int64) bool {
			store := fundedStore()
			shares := decimal.NewFromInt(requested)
			_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: &shares})
			return err == ErrInvalidShares && store.calls == 0
		},
		gen.Int64Range(-1_000_000, 0),
	))

	properties.TestingRun(t)
}
