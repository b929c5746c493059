package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/errors"
)

const casRetryDelay = 2 * time.Millisecond

// Service is the wallet ledger engine. Every balance mutation goes
// through a compare-and-swap retry loop so concurrent plays for the same
// user serialize instead of losing updates.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a ledger service
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// EnsureWallet creates the wallet for userID if missing
func (s *Service) EnsureWallet(ctx context.Context, userID string, initialBalance int64) (*Wallet, error) {
	return s.store.CreateWallet(ctx, userID, initialBalance)
}

// Balance returns the current balance for userID
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// History returns up to limit most recent transactions, newest first
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return s.store.Transactions(ctx, userID, limit)
}

// ApplyDelta atomically applies a signed amount to the user's balance and
// appends one transaction. A delta that would drive the balance negative
// fails with InsufficientFunds and leaves no trace. When playID is set
// and a transaction already exists for it, the prior result is returned
// instead of applying the delta again.
func (s *Service) ApplyDelta(ctx context.Context, userID string, amount int64, reason string, playID string) (*Transaction, int64, error) {
	return s.apply(ctx, userID, amount, reason, playID, false)
}

// ApplyDeltaClamped behaves like ApplyDelta but clamps a negative amount
// at the current balance so the write never fails on funds. The recorded
// transaction carries the applied amount, which keeps the ledger
// reconciliation exact. Used for penalty outcomes that may exceed what
// the user holds.
func (s *Service) ApplyDeltaClamped(ctx context.Context, userID string, amount int64, reason string, playID string) (*Transaction, int64, error) {
	return s.apply(ctx, userID, amount, reason, playID, true)
}

func (s *Service) apply(ctx context.Context, userID string, amount int64, reason string, playID string, clamp bool) (*Transaction, int64, error) {
	if playID != "" {
		prior, err := s.store.TransactionByPlayID(ctx, userID, playID)
		if err != nil {
			return nil, 0, err
		}
		if prior != nil {
			balance, err := s.Balance(ctx, userID)
			if err != nil {
				return nil, 0, err
			}
			s.logger.Debug().
				Str("user_id", userID).
				Str("play_id", playID).
				Msg("duplicate play, returning recorded transaction")
			return prior, balance, nil
		}
	}

	// Version conflicts are internal: some concurrent write won the
	// round, so a retry always observes fresh state and the loop makes
	// global progress. Only cancellation stops it.
	for {
		w, err := s.store.GetWallet(ctx, userID)
		if err != nil {
			return nil, 0, err
		}

		applied := amount
		if clamp && w.Balance+amount < 0 {
			applied = -w.Balance
		}
		newBalance := w.Balance + applied
		if newBalance < 0 {
			return nil, 0, errors.New(errors.ErrInsufficientFunds, "insufficient funds")
		}

		txn := &Transaction{
			ID:        uuid.New().String(),
			UserID:    userID,
			PlayID:    playID,
			Amount:    applied,
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		}

		err = s.store.CompareAndSwap(ctx, userID, w.Version, newBalance, txn)
		if err == nil {
			return txn, newBalance, nil
		}
		if errors.GetCode(err) != errors.ErrConcurrencyConflict {
			return nil, 0, err
		}

		select {
		case <-ctx.Done():
			return nil, 0, errors.Wrap(ctx.Err(), errors.ErrStorageUnavailable, "play cancelled before commit")
		case <-time.After(casRetryDelay):
		}
	}
}
