package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fundedStore() *memStore {
	return newMemStore().
		withValuation("1000000", "10000").
		withPool("100000", "25000").
		withShares("emp-1", "100", false).
		withShares("emp-1", "20", true)
}

func TestSell_Success(t *testing.T) {
	store := fundedStore()
	events := &recordingPublisher{}
	processor := &ShareSaleProcessor{Store: store, Events: events}

	result, err := processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("5")})
	require.NoError(t, err)

	assert.True(t, result.Price.Equal(dec("100")), "price %s", result.Price)
	assert.True(t, result.Amount.Equal(dec("500")), "amount %s", result.Amount)
	assert.True(t, result.SoldShares.Equal(dec("5")))

	_, pools, shares := store.counts()
	assert.Equal(t, 2, pools)
	assert.Equal(t, 3, shares)

	entry := store.shares[2]
	assert.Equal(t, "emp-1", entry.EmployeeId)
	assert.True(t, entry.Shares.Equal(dec("-5")))
	assert.False(t, entry.Locked)

	latest := store.latestPool()
	assert.True(t, latest.Layer1Amount.Equal(dec("99500")))
	assert.True(t, latest.Layer2Amount.Equal(dec("25000")))

	require.Len(t, events.events, 1)
	assert.Equal(t, EventShareSold, events.events[0].Type)
}

func TestSell_LockedSharesNeverCount(t *testing.T) {
	store := fundedStore()
	processor := &ShareSaleProcessor{Store: store}

	_, err := processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("100.0001")})
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("120")})
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, pools, shares := store.counts()
	assert.Equal(t, 1, pools)
	assert.Equal(t, 2, shares)

	_, err = processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("100")})
	require.NoError(t, err)

	_, err = processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestSell_CashInsufficient(t *testing.T) {
	store := newMemStore().
		withValuation("1000000", "10000").
		withPool("499.99", "1000000").
		withShares("emp-1", "100", false)
	processor := &ShareSaleProcessor{Store: store}

	_, err := processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("5")})
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.True(t, IsRejection(err))

	_, pools, shares := store.counts()
	assert.Equal(t, 1, pools)
	assert.Equal(t, 1, shares)
}

func TestSell_RejectsBadInputBeforeReading(t *testing.T) {
	cases := []struct {
		in   SaleInput
		want error
	}{
		{SaleInput{Shares: decPtr("1")}, ErrInvalidSaleInput},
		{SaleInput{EmployeeId: "emp-1"}, ErrInvalidSaleInput},
		{SaleInput{EmployeeId: "emp-1", Shares: decPtr("0")}, ErrInvalidShares},
		{SaleInput{EmployeeId: "emp-1", Shares: decPtr("-3")}, ErrInvalidShares},
	}
	for _, tc := range cases {
		store := fundedStore()
		processor := &ShareSaleProcessor{Store: store}
		_, err := processor.Sell(context.Background(), tc.in)
		assert.ErrorIs(t, err, tc.want)
		assert.Equal(t, 0, store.calls)
	}
}

func TestSell_WhitespaceEmployeeIdIsLookedUp(t *testing.T) {
	store := fundedStore()
	processor := &ShareSaleProcessor{Store: store}

	_, err := processor.Sell(context.Background(), SaleInput{EmployeeId: " ", Shares: decPtr("1")})
	assert.ErrorIs(t, err, ErrInsufficientShares)
	assert.NotZero(t, store.calls)
}

func TestSell_ConfigurationErrors(t *testing.T) {
	t.Run("company value missing", func(t *testing.T) {
		store := fundedStore()
		store.liveValue = nil
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrCompanyValueMissing)
	})
	t.Run("company value duplicated", func(t *testing.T) {
		store := fundedStore()
		store.liveValueErr = models.ErrSingleRowMultiple
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrCompanyValueMissing)
	})
	t.Run("zero total shares", func(t *testing.T) {
		store := fundedStore()
		store.sharesCfg.TotalShares = decimal.Zero
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrShareConfigMissing)
	})
	t.Run("non-positive price", func(t *testing.T) {
		store := fundedStore()
		store.liveValue.CompanyValue = dec("-5")
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrInvalidSharePrice)
		assert.False(t, IsRejection(err))
	})
	t.Run("pool empty", func(t *testing.T) {
		store := fundedStore()
		store.pools = nil
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrMoneyPoolEmpty)
	})
}

func TestSell_WriteFailuresLeaveNoTrace(t *testing.T) {
	t.Run("ledger", func(t *testing.T) {
		store := fundedStore()
		store.ledgerWriteErr = errors.New("disk full")
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrLedgerWrite)
		_, pools, shares := store.counts()
		assert.Equal(t, 1, pools)
		assert.Equal(t, 2, shares)
	})
	t.Run("pool after ledger", func(t *testing.T) {
		store := fundedStore()
		store.poolWriteErr = errors.New("disk full")
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrPoolWrite)
		_, pools, shares := store.counts()
		assert.Equal(t, 1, pools)
		assert.Equal(t, 2, shares, "ledger entry must be rolled back with the pool write")
	})
	t.Run("query failures", func(t *testing.T) {
		store := fundedStore()
		store.ledgerReadErr = errors.New("timeout")
		_, err := (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrLedgerQuery)

		store = fundedStore()
		store.poolReadErr = errors.New("timeout")
		_, err = (&ShareSaleProcessor{Store: store}).Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("1")})
		assert.ErrorIs(t, err, ErrMoneyPoolQuery)
	})
}

func TestSell_ConcurrentSalesNeverOverspend(t *testing.T) {
	store := newMemStore().
		withValuation("1000000", "10000").
		withPool("1000", "0").
		withShares("emp-1", "50", false)
	processor := &ShareSaleProcessor{Store: store}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := processor.Sell(context.Background(), SaleInput{EmployeeId: "emp-1", Shares: decPtr("3")}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 1000 cash at 100 per share covers three sales of 3 shares.
	if ok != 3 {
		t.Fatalf("expected exactly 3 successful sales, got %d", ok)
	}
	latest := store.latestPool()
	if !latest.Layer1Amount.Equal(dec("100")) {
		t.Fatalf("expected layer1 100, got %s", latest.Layer1Amount)
	}
}

func TestHolding(t *testing.T) {
	store := fundedStore()
	holding, err := (&ShareSaleProcessor{Store: store}).Holding(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.True(t, holding.Balance.Available.Equal(dec("100")))
	assert.True(t, holding.Balance.Locked.Equal(dec("20")))
	require.NotNil(t, holding.Value)
	assert.True(t, holding.Value.Equal(dec("10000")))

	store.liveValue = nil
	holding, err = (&ShareSaleProcessor{Store: store}).Holding(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Nil(t, holding.Price)
	assert.Nil(t, holding.Value)
}
