package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrIdempotencyKeyTaken = errors.New("idempotency key already recorded")

// IdempotencyKey remembers the outcome of a completed request so a retry replays it.
// Unique constraint: (scope, request_key).
type IdempotencyKey struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Scope       string    `gorm:"size:100;not null;index:uniq_idem,unique" json:"scope"`
	RequestKey  string    `gorm:"size:255;not null;index:uniq_idem,unique" json:"request_key"`
	Fingerprint string    `gorm:"size:64;not null" json:"fingerprint"`
	Response    string    `gorm:"type:text;not null" json:"response"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}

// FindIdempotencyKey returns the recorded key, or nil when the request has not completed before.
func FindIdempotencyKey(ctx context.Context, db *gorm.DB, scope string, requestKey string) (*IdempotencyKey, error) {
	var rows []IdempotencyKey
	if err := db.WithContext(ctx).
		Where("scope = ? AND request_key = ?", scope, requestKey).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func CreateIdempotencyKey(ctx context.Context, db *gorm.DB, key *IdempotencyKey) error {
	if err := db.WithContext(ctx).Create(key).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return ErrIdempotencyKeyTaken
		}
		return err
	}
	return nil
}
