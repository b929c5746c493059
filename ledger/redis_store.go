package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	redisdb "github.com/remibonds525-star/loyalty-engine/db/redis"
	"github.com/remibonds525-star/loyalty-engine/errors"
)

const (
	walletKeyPrefix = "wallet:"
	txnsKeySuffix   = ":txns"
	playKeySuffix   = ":play:"

	// play-id transaction lookups only need to cover the retry window
	playIndexTTL = 24 * time.Hour
)

// RedisStore is the Redis-backed Store. The wallet lives in a hash with
// balance and version fields; CompareAndSwap uses WATCH/MULTI/EXEC so a
// concurrent write aborts the transaction instead of losing an update.
type RedisStore struct {
	db *redisdb.Client
}

// NewRedisStore creates a Redis-backed ledger store
func NewRedisStore(db *redisdb.Client) *RedisStore {
	return &RedisStore{db: db}
}

func walletKey(userID string) string {
	return walletKeyPrefix + userID
}

func txnsKey(userID string) string {
	return walletKeyPrefix + userID + txnsKeySuffix
}

func playKey(userID, playID string) string {
	return walletKeyPrefix + userID + playKeySuffix + playID
}

// GetWallet returns the wallet for userID
func (s *RedisStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	fields, err := s.db.HGetAll(ctx, walletKey(userID))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to read wallet")
	}
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrUserNotFound, "wallet not found")
	}
	return parseWallet(userID, fields)
}

// createWalletScript writes both hash fields in one step so a
// concurrent reader sees either a complete wallet or no wallet at all
var createWalletScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	redis.call("HSET", KEYS[1], "balance", ARGV[1], "version", 0)
	return 1
end
return 0`)

// CreateWallet creates a wallet if one does not exist
func (s *RedisStore) CreateWallet(ctx context.Context, userID string, initialBalance int64) (*Wallet, error) {
	key := walletKey(userID)
	if err := createWalletScript.Run(ctx, s.db.GetClient(), []string{key}, initialBalance).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to create wallet")
	}
	return s.GetWallet(ctx, userID)
}

// CompareAndSwap writes the balance and appends the transaction inside
// one WATCH-guarded MULTI/EXEC block
func (s *RedisStore) CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newBalance int64, txn *Transaction) error {
	key := walletKey(userID)

	data, err := json.Marshal(txn)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternalServerError, "failed to marshal transaction")
	}

	err = s.db.Watch(ctx, func(tx *redis.Tx) error {
		version, err := tx.HGet(ctx, key, "version").Result()
		if err == redis.Nil {
			return errors.New(errors.ErrUserNotFound, "wallet not found")
		}
		if err != nil {
			return err
		}
		current, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt wallet version %q: %w", version, err)
		}
		if current != expectedVersion {
			return errors.New(errors.ErrConcurrencyConflict, "wallet version changed")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "balance", newBalance, "version", expectedVersion+1)
			pipe.RPush(ctx, txnsKey(userID), data)
			if txn.PlayID != "" {
				pipe.Set(ctx, playKey(userID, txn.PlayID), data, playIndexTTL)
			}
			return nil
		})
		return err
	}, key)

	if err == redis.TxFailedErr {
		return errors.New(errors.ErrConcurrencyConflict, "wallet changed during transaction")
	}
	if err != nil {
		if errors.IsAppError(err) {
			return err
		}
		return errors.Wrap(err, errors.ErrStorageUnavailable, "failed to commit wallet update")
	}
	return nil
}

// TransactionByPlayID returns the transaction recorded for playID
func (s *RedisStore) TransactionByPlayID(ctx context.Context, userID string, playID string) (*Transaction, error) {
	val, err := s.db.GetClient().Get(ctx, playKey(userID, playID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to read play index")
	}
	var txn Transaction
	if err := json.Unmarshal([]byte(val), &txn); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServerError, "corrupt transaction record")
	}
	return &txn, nil
}

// Transactions returns up to limit most recent transactions, newest first
func (s *RedisStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := s.db.GetClient().LRange(ctx, txnsKey(userID), int64(-limit), -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageUnavailable, "failed to read transactions")
	}
	out := make([]Transaction, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var txn Transaction
		if err := json.Unmarshal([]byte(raw[i]), &txn); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternalServerError, "corrupt transaction record")
		}
		out = append(out, txn)
	}
	return out, nil
}

func parseWallet(userID string, fields map[string]string) (*Wallet, error) {
	balance, err := strconv.ParseInt(fields["balance"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServerError, "corrupt wallet balance")
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServerError, "corrupt wallet version")
	}
	return &Wallet{UserID: userID, Balance: balance, Version: version}, nil
}
