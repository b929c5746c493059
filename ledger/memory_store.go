package ledger

import (
	"context"
	"sync"

	"github.com/remibonds525-star/loyalty-engine/errors"
)

// MemoryStore is an in-process Store used for tests and single-node
// deployments with storage.backend set to "memory".
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]*Wallet
	txns    map[string][]Transaction
	byPlay  map[string]map[string]*Transaction
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
		txns:    make(map[string][]Transaction),
		byPlay:  make(map[string]map[string]*Transaction),
	}
}

// GetWallet returns the wallet for userID
func (s *MemoryStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, errors.New(errors.ErrUserNotFound, "wallet not found")
	}
	copied := *w
	return &copied, nil
}

// CreateWallet creates a wallet if one does not exist
func (s *MemoryStore) CreateWallet(ctx context.Context, userID string, initialBalance int64) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.wallets[userID]; ok {
		copied := *w
		return &copied, nil
	}
	w := &Wallet{UserID: userID, Balance: initialBalance, Version: 0}
	s.wallets[userID] = w
	copied := *w
	return &copied, nil
}

// CompareAndSwap writes the balance and appends the transaction under
// one lock acquisition
func (s *MemoryStore) CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newBalance int64, txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return errors.New(errors.ErrUserNotFound, "wallet not found")
	}
	if w.Version != expectedVersion {
		return errors.New(errors.ErrConcurrencyConflict, "wallet version changed")
	}
	w.Balance = newBalance
	w.Version++

	s.txns[userID] = append(s.txns[userID], *txn)
	if txn.PlayID != "" {
		if s.byPlay[userID] == nil {
			s.byPlay[userID] = make(map[string]*Transaction)
		}
		copied := *txn
		s.byPlay[userID][txn.PlayID] = &copied
	}
	return nil
}

// TransactionByPlayID returns the transaction recorded for playID
func (s *MemoryStore) TransactionByPlayID(ctx context.Context, userID string, playID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.byPlay[userID][playID]
	if !ok {
		return nil, nil
	}
	copied := *txn
	return &copied, nil
}

// Transactions returns up to limit most recent transactions, newest first
func (s *MemoryStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.txns[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Transaction, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
