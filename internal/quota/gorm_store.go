package quota

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

// GormCounterStore is a CounterStore backed by the rate_counters table. All
// server instances sharing the database share the same budgets.
//
// Atomicity: the admit decision is a single conditional
//
//	UPDATE rate_counters SET count = count + 1 WHERE key = ? AND count < ?
//
// executed inside a transaction, so two concurrent callers can never both be
// admitted past the limit. Expired rows are reset in place rather than
// deleted; the ExpiresAt column makes stale buckets self-cleaning on reuse.
type GormCounterStore struct {
	DB *gorm.DB

	// Now is a test seam; defaults to time.Now when nil.
	Now func() time.Time
}

// NewGormCounterStore constructs a shared counter store on db.
func NewGormCounterStore(db *gorm.DB) *GormCounterStore {
	return &GormCounterStore{DB: db}
}

func (s *GormCounterStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IncrementIfBelow implements CounterStore.
func (s *GormCounterStore) IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	now := s.now()
	var count int64
	var allowed bool

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Ensure the row exists (count 0, fresh expiry) without clobbering a
		// live bucket.
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.RateCounter{
			Key:       key,
			Count:     0,
			ExpiresAt: now.Add(ttl),
		}).Error; err != nil {
			return err
		}

		// Reset an expired bucket in place.
		if err := tx.Model(&domain.RateCounter{}).
			Where("key = ? AND expires_at <= ?", key, now).
			Updates(map[string]any{"count": 0, "expires_at": now.Add(ttl)}).Error; err != nil {
			return err
		}

		// The atomic check-and-increment.
		res := tx.Model(&domain.RateCounter{}).
			Where("key = ? AND count < ?", key, limit).
			Update("count", gorm.Expr("count + 1"))
		if res.Error != nil {
			return res.Error
		}
		allowed = res.RowsAffected > 0

		var row domain.RateCounter
		if err := tx.Where("key = ?", key).First(&row).Error; err != nil {
			return err
		}
		count = row.Count
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return count, allowed, nil
}

// Decrement implements CounterStore.
func (s *GormCounterStore) Decrement(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).Model(&domain.RateCounter{}).
		Where("key = ? AND count > 0", key).
		Update("count", gorm.Expr("count - 1")).Error
}

// Get implements CounterStore.
func (s *GormCounterStore) Get(ctx context.Context, key string) (int64, error) {
	var row domain.RateCounter
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !row.ExpiresAt.After(s.now()) {
		return 0, nil
	}
	return row.Count, nil
}
