package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/equity_backend/config"
	"github.com/mmdatafocus/equity_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store is the persistence the ledger workflows need.
// Writes that depend on a prior read of the money pool or share ledger must run inside InTx.
type Store interface {
	// InTx runs fn in one transaction holding the money pool lock. Nested calls reuse the transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	InsertReport(ctx context.Context, report models.NewReport) (models.SchemaCandidate, error)
	ListReportsByMonth(ctx context.Context, businessId string, month string) ([]models.Report, error)

	LatestMoneyPool(ctx context.Context) (*models.CompanyMoneyPool, error)
	AppendMoneyPool(ctx context.Context, snapshot *models.CompanyMoneyPool) error

	ListShareEntries(ctx context.Context, employeeId string) ([]models.ShareLedgerEntry, error)
	AppendShareEntry(ctx context.Context, entry *models.ShareLedgerEntry) error

	CompanyLiveValue(ctx context.Context) (*models.CompanyLiveValue, error)
	CompanySharesConfig(ctx context.Context) (*models.CompanySharesConfig, error)

	FindIdempotencyKey(ctx context.Context, scope string, requestKey string) (*models.IdempotencyKey, error)
	SaveIdempotencyKey(ctx context.Context, key *models.IdempotencyKey) error
}

// GormStore is the MySQL-backed Store.
type GormStore struct {
	db          *gorm.DB
	contract    models.SchemaContract
	lockTimeout time.Duration
	logger      *logrus.Logger
	inTx        bool
}

func NewGormStore(db *gorm.DB, contract models.SchemaContract) *GormStore {
	return &GormStore{
		db:          db,
		contract:    contract,
		lockTimeout: 30 * time.Second,
		logger:      config.GetLogger(),
	}
}

// The lock is taken on a pinned connection before BEGIN and released after COMMIT or
// ROLLBACK, so the next writer always reads the committed pool.
func (s *GormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireMoneyPoolLock(conn, s.lockTimeout); err != nil {
			return err
		}
		err := conn.Transaction(func(tx *gorm.DB) error {
			return fn(&GormStore{
				db:          tx,
				contract:    s.contract,
				lockTimeout: s.lockTimeout,
				logger:      s.logger,
				inTx:        true,
			})
		})
		// A cancelled request must still free the lock, or it stays on the pooled connection.
		if releaseErr := ReleaseMoneyPoolLock(conn.WithContext(context.WithoutCancel(ctx))); releaseErr != nil {
			config.LogError(s.logger, "GormStore", "InTx", "release money pool lock", moneyPoolLockName, releaseErr)
		}
		return err
	})
}

func (s *GormStore) InsertReport(ctx context.Context, report models.NewReport) (models.SchemaCandidate, error) {
	return models.InsertReport(ctx, s.db, s.contract.Report, report)
}

func (s *GormStore) ListReportsByMonth(ctx context.Context, businessId string, month string) ([]models.Report, error) {
	return models.ListReportsByMonth(ctx, s.db, businessId, month)
}

func (s *GormStore) LatestMoneyPool(ctx context.Context) (*models.CompanyMoneyPool, error) {
	return models.GetLatestMoneyPool(ctx, s.db)
}

func (s *GormStore) AppendMoneyPool(ctx context.Context, snapshot *models.CompanyMoneyPool) error {
	return models.CreateMoneyPoolSnapshot(ctx, s.db, snapshot)
}

func (s *GormStore) ListShareEntries(ctx context.Context, employeeId string) ([]models.ShareLedgerEntry, error) {
	return models.ListShareLedgerEntries(ctx, s.db, employeeId)
}

func (s *GormStore) AppendShareEntry(ctx context.Context, entry *models.ShareLedgerEntry) error {
	return models.CreateShareLedgerEntry(ctx, s.db, entry)
}

func (s *GormStore) CompanyLiveValue(ctx context.Context) (*models.CompanyLiveValue, error) {
	return models.GetCompanyLiveValue(ctx, s.db)
}

func (s *GormStore) CompanySharesConfig(ctx context.Context) (*models.CompanySharesConfig, error) {
	return models.GetCompanySharesConfig(ctx, s.db)
}

func (s *GormStore) FindIdempotencyKey(ctx context.Context, scope string, requestKey string) (*models.IdempotencyKey, error) {
	return models.FindIdempotencyKey(ctx, s.db, scope, requestKey)
}

func (s *GormStore) SaveIdempotencyKey(ctx context.Context, key *models.IdempotencyKey) error {
	return models.CreateIdempotencyKey(ctx, s.db, key)
}
