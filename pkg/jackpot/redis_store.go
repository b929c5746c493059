package jackpot

import (
	"context"
	"strconv"

	redisdb "github.com/remibonds525-star/loyalty-engine/db/redis"
	"github.com/remibonds525-star/loyalty-engine/errors"
)

const poolKey = "jackpot:pool"

// RedisStore backs the shared pool with a single Redis counter.
// INCRBY serializes tax contributions and GETSET makes the payout
// read-and-reset one round trip.
type RedisStore struct {
	db        *redisdb.Client
	baseValue int64
}

// NewRedisStore creates a Redis-backed pool store, seeding the counter
// at baseValue when the key does not exist yet
func NewRedisStore(ctx context.Context, db *redisdb.Client, baseValue int64) (*RedisStore, error) {
	if _, err := db.SetNX(ctx, poolKey, baseValue, 0); err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to seed jackpot pool")
	}
	return &RedisStore{db: db, baseValue: baseValue}, nil
}

// Value returns the current pool value
func (s *RedisStore) Value(ctx context.Context) (int64, error) {
	val, err := s.db.Get(ctx, poolKey)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to read jackpot pool")
	}
	value, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternalServerError, "corrupt jackpot pool value")
	}
	return value, nil
}

// AddTax atomically increments the pool
func (s *RedisStore) AddTax(ctx context.Context, amount int64) (int64, error) {
	value, err := s.db.IncrBy(ctx, poolKey, amount)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to add jackpot tax")
	}
	return value, nil
}

// TryPayout atomically swaps the pool value for baseValue
func (s *RedisStore) TryPayout(ctx context.Context) (int64, error) {
	old, err := s.db.GetSet(ctx, poolKey, s.baseValue)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to reset jackpot pool")
	}
	if old == "" {
		// key was missing, pool was at base
		return s.baseValue, nil
	}
	payout, err := strconv.ParseInt(old, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternalServerError, "corrupt jackpot pool value")
	}
	return payout, nil
}
