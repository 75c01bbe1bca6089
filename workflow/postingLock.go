package workflow

import (
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
)

const moneyPoolLockName = "posting:money-pool"

var (
	ErrPoolLockTimeout = errors.New("could not acquire money pool lock")
	ErrPoolLockNotHeld = errors.New("money pool lock was not held by this connection")
)

// AcquireMoneyPoolLock serializes pool-touching writes across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped. conn must be a pinned connection (gorm Connection) that
// outlives the transaction, so the lock is released only after COMMIT.
func AcquireMoneyPoolLock(conn *gorm.DB, timeout time.Duration) error {
	var ok sql.NullInt64
	if err := conn.Raw("SELECT GET_LOCK(?, ?)", moneyPoolLockName, int(timeout.Seconds())).Scan(&ok).Error; err != nil {
		return err
	}
	if !ok.Valid || ok.Int64 != 1 {
		return ErrPoolLockTimeout
	}
	return nil
}

// ReleaseMoneyPoolLock returns ErrPoolLockNotHeld when RELEASE_LOCK reports 0 or NULL.
func ReleaseMoneyPoolLock(conn *gorm.DB) error {
	var released sql.NullInt64
	if err := conn.Raw("SELECT RELEASE_LOCK(?)", moneyPoolLockName).Scan(&released).Error; err != nil {
		return err
	}
	if !released.Valid || released.Int64 != 1 {
		return ErrPoolLockNotHeld
	}
	return nil
}
