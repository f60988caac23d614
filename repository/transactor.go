package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// AdvisoryLock names a PostgreSQL advisory lock. Every lock used by the
// application is listed below so ids cannot collide.
type AdvisoryLock string

const (
	LockAnonymizationBatch    AdvisoryLock = "anonymization-batch"
	LockAnonymizedPhoneSerial AdvisoryLock = "anonymized-phone-serial"
)

var advisoryLockIDs = map[AdvisoryLock]int64{
	LockAnonymizationBatch:    7_410_001,
	LockAnonymizedPhoneSerial: 7_410_002,
}

// ID returns the numeric key passed to pg_try_advisory_lock.
func (l AdvisoryLock) ID() (int64, error) {
	id, ok := advisoryLockIDs[l]
	if !ok {
		return 0, fmt.Errorf("unknown advisory lock %q", string(l))
	}
	return id, nil
}

// GormTransactor implements Transactor on top of a *gorm.DB
type GormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) Transactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return WithTransaction(ctx, t.db, fn)
}

// WithAdvisoryLock pins one pooled connection for the session-level lock so
// the unlock runs on the same backend that acquired it.
func (t *GormTransactor) WithAdvisoryLock(ctx context.Context, lock AdvisoryLock, fn func(context.Context) error) (bool, error) {
	id, err := lock.ID()
	if err != nil {
		return false, err
	}

	acquired := false
	err = t.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", id).Scan(&acquired).Error; err != nil {
			return fmt.Errorf("failed to acquire advisory lock %s: %w", lock, err)
		}
		if !acquired {
			return nil
		}
		defer func() {
			// context may already be cancelled; unlock regardless
			conn.WithContext(context.Background()).Exec("SELECT pg_advisory_unlock(?)", id)
		}()
		return fn(ctx)
	})
	return acquired, err
}
