package workflow

import (
	"context"
	"sync"

	"github.com/mmdatafocus/equity_backend/models"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store. InTx serializes callers and rolls back on error.
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex

	reports   []models.NewReport
	pools     []models.CompanyMoneyPool
	shares    []models.ShareLedgerEntry
	liveValue *models.CompanyLiveValue
	sharesCfg *models.CompanySharesConfig
	idem      map[string]models.IdempotencyKey

	calls int

	insertErr      error
	poolReadErr    error
	poolWriteErr   error
	ledgerReadErr  error
	ledgerWriteErr error
	liveValueErr   error
	sharesCfgErr   error
}

type memTx struct {
	*memStore
}

func newMemStore() *memStore {
	return &memStore{idem: map[string]models.IdempotencyKey{}}
}

func (s *memStore) withPool(layer1, layer2 string) *memStore {
	s.pools = append(s.pools, models.CompanyMoneyPool{
		ID:           len(s.pools) + 1,
		Layer1Amount: decimal.RequireFromString(layer1),
		Layer2Amount: decimal.RequireFromString(layer2),
	})
	return s
}

func (s *memStore) withShares(employeeId string, shares string, locked bool) *memStore {
	s.shares = append(s.shares, models.ShareLedgerEntry{
		ID:         len(s.shares) + 1,
		EmployeeId: employeeId,
		Shares:     decimal.RequireFromString(shares),
		Locked:     locked,
	})
	return s
}

func (s *memStore) withValuation(companyValue, totalShares string) *memStore {
	s.liveValue = &models.CompanyLiveValue{ID: 1, CompanyValue: decimal.RequireFromString(companyValue)}
	s.sharesCfg = &models.CompanySharesConfig{ID: 1, TotalShares: decimal.RequireFromString(totalShares)}
	return s
}

func (s *memStore) latestPool() *models.CompanyMoneyPool {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if len(s.pools) == 0 {
		return nil
	}
	p := s.pools[len(s.pools)-1]
	return &p
}

func (s *memStore) counts() (reports, pools, shares int) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return len(s.reports), len(s.pools), len(s.shares)
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.dataMu.Lock()
	reports := append([]models.NewReport(nil), s.reports...)
	pools := append([]models.CompanyMoneyPool(nil), s.pools...)
	shares := append([]models.ShareLedgerEntry(nil), s.shares...)
	idem := make(map[string]models.IdempotencyKey, len(s.idem))
	for k, v := range s.idem {
		idem[k] = v
	}
	s.dataMu.Unlock()

	if err := fn(memTx{s}); err != nil {
		s.dataMu.Lock()
		s.reports, s.pools, s.shares, s.idem = reports, pools, shares, idem
		s.dataMu.Unlock()
		return err
	}
	return nil
}

func (t memTx) InTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (s *memStore) InsertReport(ctx context.Context, report models.NewReport) (models.SchemaCandidate, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	if s.insertErr != nil {
		return models.SchemaCandidate{}, s.insertErr
	}
	s.reports = append(s.reports, report)
	return models.ReportSchemaCandidates[0], nil
}

func (s *memStore) ListReportsByMonth(ctx context.Context, businessId string, month string) ([]models.Report, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	var out []models.Report
	for i, r := range s.reports {
		if r.BusinessId != businessId || r.Month == nil || *r.Month != month {
			continue
		}
		out = append(out, models.Report{
			ID:         i + 1,
			BusinessId: r.BusinessId,
			Month:      r.Month,
			Income:     r.Income,
			Expense:    r.Expense,
			PoolTaken:  r.PoolTaken,
			Profit:     r.Profit,
		})
	}
	return out, nil
}

func (s *memStore) LatestMoneyPool(ctx context.Context) (*models.CompanyMoneyPool, error) {
	s.dataMu.Lock()
	s.calls++
	err := s.poolReadErr
	s.dataMu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.latestPool(), nil
}

func (s *memStore) AppendMoneyPool(ctx context.Context, snapshot *models.CompanyMoneyPool) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	if s.poolWriteErr != nil {
		return s.poolWriteErr
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}
	if snapshot.PrevId != nil {
		for _, p := range s.pools {
			if p.PrevId != nil && *p.PrevId == *snapshot.PrevId {
				return models.ErrPoolSnapshotConflict
			}
		}
	}
	snapshot.ID = len(s.pools) + 1
	s.pools = append(s.pools, *snapshot)
	return nil
}

func (s *memStore) ListShareEntries(ctx context.Context, employeeId string) ([]models.ShareLedgerEntry, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	if s.ledgerReadErr != nil {
		return nil, s.ledgerReadErr
	}
	var out []models.ShareLedgerEntry
	for _, e := range s.shares {
		if e.EmployeeId == employeeId {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) AppendShareEntry(ctx context.Context, entry *models.ShareLedgerEntry) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	if s.ledgerWriteErr != nil {
		return s.ledgerWriteErr
	}
	entry.ID = len(s.shares) + 1
	s.shares = append(s.shares, *entry)
	return nil
}

func (s *memStore) CompanyLiveValue(ctx context.Context) (*models.CompanyLiveValue, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	if s.liveValueErr != nil {
		return nil, s.liveValueErr
	}
	if s.liveValue == nil {
		return nil, models.ErrSingleRowMissing
	}
	return s.liveValue, nil
}

func (s *memStore) CompanySharesConfig(ctx context.Context) (*models.CompanySharesConfig, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	if s.sharesCfgErr != nil {
		return nil, s.sharesCfgErr
	}
	if s.sharesCfg == nil {
		return nil, models.ErrSingleRowMissing
	}
	return s.sharesCfg, nil
}

func (s *memStore) FindIdempotencyKey(ctx context.Context, scope string, requestKey string) (*models.IdempotencyKey, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	key, ok := s.idem[scope+"/"+requestKey]
	if !ok {
		return nil, nil
	}
	return &key, nil
}

func (s *memStore) SaveIdempotencyKey(ctx context.Context, key *models.IdempotencyKey) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.calls++
	id := key.Scope + "/" + key.RequestKey
	if _, ok := s.idem[id]; ok {
		return models.ErrIdempotencyKeyTaken
	}
	key.ID = len(s.idem) + 1
	s.idem[id] = *key
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}
