package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	redisdb "github.com/remibonds525-star/loyalty-engine/db/redis"
	"github.com/remibonds525-star/loyalty-engine/errors"
)

const (
	// counters embed the day key, old days expire on their own
	counterTTL = 48 * time.Hour
	playTTL    = 24 * time.Hour
)

// RedisStore is the Redis-backed quota Store. The day key is part of the
// counter key so a new day starts from a missing key, which reads as
// zero. The play-id mark and the counter increment commit as one script
// run, so a mark can never exist without its increment.
type RedisStore struct {
	db *redisdb.Client
}

// NewRedisStore creates a Redis-backed quota store
func NewRedisStore(db *redisdb.Client) *RedisStore {
	return &RedisStore{db: db}
}

func counterKey(userID, game, day string) string {
	return fmt.Sprintf("quota:%s:%s:%s", userID, game, day)
}

func dayKeyPointer(userID, game string) string {
	return fmt.Sprintf("quota:%s:%s:day", userID, game)
}

func playMarkKey(playID string) string {
	return "quota:play:" + playID
}

// Get returns the record for (userID, game)
func (s *RedisStore) Get(ctx context.Context, userID string, game string) (*Record, error) {
	client := s.db.GetClient()

	day, err := client.Get(ctx, dayKeyPointer(userID, game)).Result()
	if err == redis.Nil {
		return &Record{UserID: userID, Game: game}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to read quota record")
	}

	count, err := client.Get(ctx, counterKey(userID, game, day)).Result()
	if err == redis.Nil {
		return &Record{UserID: userID, Game: game, LastPlayDate: day}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to read quota counter")
	}
	used, err := strconv.Atoi(count)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServerError, "corrupt quota counter")
	}
	return &Record{UserID: userID, Game: game, PlaysUsed: used, LastPlayDate: day}, nil
}

// consumeScript marks the play id and increments the day counter in the
// same script run. A replayed play id is a no-op, and a storage error
// leaves neither the mark nor the increment behind, so a retry with the
// same play id still lands the count.
var consumeScript = redis.NewScript(`
if ARGV[4] ~= "" then
	if redis.call("SET", KEYS[3], ARGV[1], "NX", "PX", ARGV[3]) == false then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[2])
return 1`)

// Consume increments the play count for day, once per playID
func (s *RedisStore) Consume(ctx context.Context, userID string, game string, day string, playID string) error {
	keys := []string{dayKeyPointer(userID, game), counterKey(userID, game, day), playMarkKey(playID)}
	args := []interface{}{day, counterTTL.Milliseconds(), playTTL.Milliseconds(), playID}
	if err := consumeScript.Run(ctx, s.db.GetClient(), keys, args...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrStorageUnavailable, "failed to commit quota increment")
	}
	return nil
}
