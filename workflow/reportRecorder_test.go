package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeriveMonth(t *testing.T) {
	cases := map[string]*string{
		"2024-03-15": strPtr("2024-03"),
		"2024-03":    strPtr("2024-03"),
		"24-3":       strPtr("24-3"),
		"20240315":   nil,
		"":           nil,
	}
	for in, want := range cases {
		got := DeriveMonth(in)
		if want == nil {
			assert.Nil(t, got, in)
			continue
		}
		require.NotNil(t, got, in)
		assert.Equal(t, *want, *got, in)
	}
}

func strPtr(s string) *string { return &s }

func TestRecord_WithoutPoolTaken(t *testing.T) {
	store := newMemStore().withPool("1000", "50")
	events := &recordingPublisher{}
	recorder := &ReportRecorder{Store: store, Events: events, AtomicPoolDebit: true}

	result, err := recorder.Record(context.Background(), DailyReportInput{
		BusinessId: "b1",
		Date:       "2024-03-15",
		Income:     dec("1000"),
		Expense:    dec("400"),
	})
	require.NoError(t, err)

	assert.False(t, result.PoolUpdated)
	require.NotNil(t, result.Month)
	assert.Equal(t, "2024-03", *result.Month)
	assert.True(t, result.Profit.Equal(dec("600")))

	reports, pools, _ := store.counts()
	assert.Equal(t, 1, reports)
	assert.Equal(t, 1, pools, "no snapshot may be appended")
	assert.Equal(t, "2024-03", *store.reports[0].Month)
	assert.True(t, store.reports[0].Profit.Equal(dec("600")))

	require.Len(t, events.events, 1)
	assert.Equal(t, EventDailyReportRecorded, events.events[0].Type)
}

func TestRecord_DebitsPool(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		store := newMemStore().withPool("1000", "50")
		recorder := &ReportRecorder{Store: store, AtomicPoolDebit: atomic}

		result, err := recorder.Record(context.Background(), DailyReportInput{
			BusinessId: "b1",
			Date:       "2024-03-15",
			Income:     dec("10"),
			PoolTaken:  dec("250.5"),
		})
		require.NoError(t, err)
		assert.True(t, result.PoolUpdated)

		latest := store.latestPool()
		assert.True(t, latest.Layer1Amount.Equal(dec("749.5")), "atomic=%v got %s", atomic, latest.Layer1Amount)
		assert.True(t, latest.Layer2Amount.Equal(dec("50")))
		require.NotNil(t, latest.PrevId)
		assert.Equal(t, 1, *latest.PrevId)
	}
}

func TestRecord_PoolInsufficient(t *testing.T) {
	t.Run("atomic records nothing", func(t *testing.T) {
		store := newMemStore().withPool("100", "0")
		recorder := &ReportRecorder{Store: store, AtomicPoolDebit: true}

		_, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15", PoolTaken: dec("100.01")})
		assert.ErrorIs(t, err, ErrPoolInsufficient)
		assert.True(t, IsRejection(err))

		reports, pools, _ := store.counts()
		assert.Equal(t, 0, reports)
		assert.Equal(t, 1, pools)
	})

	t.Run("legacy keeps the report", func(t *testing.T) {
		store := newMemStore().withPool("100", "0")
		recorder := &ReportRecorder{Store: store, AtomicPoolDebit: false}

		_, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15", PoolTaken: dec("500")})
		assert.ErrorIs(t, err, ErrPoolInsufficient)

		reports, pools, _ := store.counts()
		assert.Equal(t, 1, reports)
		assert.Equal(t, 1, pools)
	})
}

func TestRecord_EmptyPoolStillRecords(t *testing.T) {
	store := newMemStore()
	recorder := &ReportRecorder{Store: store, AtomicPoolDebit: true}

	result, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15", PoolTaken: dec("5")})
	require.NoError(t, err)
	assert.False(t, result.PoolUpdated)

	reports, pools, _ := store.counts()
	assert.Equal(t, 1, reports)
	assert.Equal(t, 0, pools)
}

func TestRecord_PoolWriteFailure(t *testing.T) {
	t.Run("atomic rolls back", func(t *testing.T) {
		store := newMemStore().withPool("100", "0")
		store.poolWriteErr = errors.New("connection reset")
		recorder := &ReportRecorder{Store: store, AtomicPoolDebit: true}

		_, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15", PoolTaken: dec("5")})
		assert.ErrorIs(t, err, ErrPoolWrite)
		assert.False(t, IsRejection(err))

		reports, _, _ := store.counts()
		assert.Equal(t, 0, reports)
	})

	t.Run("legacy reports pool_updated false", func(t *testing.T) {
		store := newMemStore().withPool("100", "0")
		store.poolWriteErr = errors.New("connection reset")
		recorder := &ReportRecorder{Store: store, AtomicPoolDebit: false}

		result, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15", PoolTaken: dec("5")})
		require.NoError(t, err)
		assert.False(t, result.PoolUpdated)

		reports, pools, _ := store.counts()
		assert.Equal(t, 1, reports)
		assert.Equal(t, 1, pools)
	})
}

func TestRecord_InsertFailure(t *testing.T) {
	store := newMemStore().withPool("100", "0")
	store.insertErr = errors.New("permission denied for table reports")
	recorder := &ReportRecorder{Store: store, AtomicPoolDebit: true}

	_, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15", PoolTaken: dec("5")})

	var insertErr *ReportInsertError
	require.ErrorAs(t, err, &insertErr)
	assert.Equal(t, "permission denied for table reports", insertErr.Details())

	_, pools, _ := store.counts()
	assert.Equal(t, 1, pools)
}

func TestRecord_RequiresBusinessAndDate(t *testing.T) {
	store := newMemStore()
	recorder := &ReportRecorder{Store: store}

	for _, in := range []DailyReportInput{
		{Date: "2024-03-15"},
		{BusinessId: "b1"},
	} {
		_, err := recorder.Record(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidReport)
	}
	assert.Equal(t, 0, store.calls)
}

func TestRecord_KeepsWhitespaceBusinessIdVerbatim(t *testing.T) {
	store := newMemStore()
	recorder := &ReportRecorder{Store: store}

	_, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "  ", Date: "2024-03-15"})
	require.NoError(t, err)
	require.Len(t, store.reports, 1)
	assert.Equal(t, "  ", store.reports[0].BusinessId)
}

func TestRecord_PublishFailureDoesNotFail(t *testing.T) {
	store := newMemStore()
	events := &recordingPublisher{err: errors.New("pubsub down")}
	recorder := &ReportRecorder{Store: store, Events: events}

	_, err := recorder.Record(context.Background(), DailyReportInput{BusinessId: "b1", Date: "2024-03-15"})
	require.NoError(t, err)
	assert.Len(t, events.events, 1)
}
