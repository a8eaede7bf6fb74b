package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/valtrilabs/cafe-backend/models"
	"gorm.io/gorm"
)

const (
	counterName           = "order_number"
	counterSeedAttempts   = 3
	DefaultOrderNumberKey = "cafe:order_number"
)

// OrderNumberAllocator hands out human-facing order numbers. Atomic
// allocators never hand out the same number twice; the others rely on the
// unique index on orders.order_number and the caller retrying on conflict.
type OrderNumberAllocator interface {
	Next(ctx context.Context) (int, error)
	Atomic() bool
}

// seedValue is the first number to hand out: base, or one past the highest
// number already stored.
func seedValue(ctx context.Context, db *gorm.DB, base int) (int, error) {
	var max sql.NullInt64
	if err := db.WithContext(ctx).Model(&models.Order{}).Select("MAX(order_number)").Row().Scan(&max); err != nil {
		return 0, fmt.Errorf("read max order number: %w", err)
	}
	if max.Valid && int(max.Int64)+1 > base {
		return int(max.Int64) + 1, nil
	}
	return base, nil
}

// MaxPlusOneAllocator reads the current maximum and proposes the next value.
// Concurrent callers can receive the same number.
type MaxPlusOneAllocator struct {
	db   *gorm.DB
	base int
}

func NewMaxPlusOneAllocator(db *gorm.DB, base int) *MaxPlusOneAllocator {
	return &MaxPlusOneAllocator{db: db, base: base}
}

func (a *MaxPlusOneAllocator) Next(ctx context.Context) (int, error) {
	var max sql.NullInt64
	if err := a.db.WithContext(ctx).Model(&models.Order{}).Select("MAX(order_number)").Row().Scan(&max); err != nil {
		return 0, fmt.Errorf("read max order number: %w", err)
	}
	if !max.Valid {
		return a.base, nil
	}
	return int(max.Int64) + 1, nil
}

func (a *MaxPlusOneAllocator) Atomic() bool { return false }

// CounterAllocator increments a row in order_counters inside its own
// transaction. The row is seeded lazily from the orders table.
type CounterAllocator struct {
	db   *gorm.DB
	base int
}

func NewCounterAllocator(db *gorm.DB, base int) *CounterAllocator {
	return &CounterAllocator{db: db, base: base}
}

func (a *CounterAllocator) Next(ctx context.Context) (int, error) {
	var lastErr error
	for attempt := 0; attempt < counterSeedAttempts; attempt++ {
		value, err := a.increment(ctx)
		if err == nil {
			return value, nil
		}
		if !isDuplicateKey(err) {
			return 0, err
		}
		// another allocator seeded the counter first
		lastErr = err
	}
	return 0, lastErr
}

func (a *CounterAllocator) increment(ctx context.Context) (int, error) {
	var value int
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.OrderCounter{}).
			Where("name = ?", counterName).
			UpdateColumn("value", gorm.Expr("value + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			seed, err := seedValue(ctx, tx, a.base)
			if err != nil {
				return err
			}
			value = seed
			return tx.Create(&models.OrderCounter{Name: counterName, Value: seed}).Error
		}
		return tx.Model(&models.OrderCounter{}).
			Where("name = ?", counterName).
			Select("value").
			Row().
			Scan(&value)
	})
	return value, err
}

func (a *CounterAllocator) Atomic() bool { return true }

// RedisAllocator uses INCR on a single key. The key is seeded with SETNX from
// the orders table so numbering continues across a Redis flush.
type RedisAllocator struct {
	client redis.Cmdable
	db     *gorm.DB
	key    string
	base   int
}

func NewRedisAllocator(client redis.Cmdable, db *gorm.DB, key string, base int) *RedisAllocator {
	if key == "" {
		key = DefaultOrderNumberKey
	}
	return &RedisAllocator{client: client, db: db, key: key, base: base}
}

func (a *RedisAllocator) Next(ctx context.Context) (int, error) {
	exists, err := a.client.Exists(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		seed, err := seedValue(ctx, a.db, a.base)
		if err != nil {
			return 0, err
		}
		if err := a.client.SetNX(ctx, a.key, seed-1, 0).Err(); err != nil {
			return 0, fmt.Errorf("redis setnx: %w", err)
		}
	}
	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return int(n), nil
}

func (a *RedisAllocator) Atomic() bool { return true }
