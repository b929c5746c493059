package ledger

import "context"

// Store is the durable backing for wallets and transactions.
//
// CompareAndSwap must apply the balance write and the transaction append
// as one indivisible unit, and must reject the write when the wallet
// version no longer matches the expected one. Implementations return
// errors.ErrConcurrencyConflict on a version mismatch so the service can
// retry with a fresh read.
type Store interface {
	// GetWallet returns the wallet for userID, or ErrUserNotFound.
	GetWallet(ctx context.Context, userID string) (*Wallet, error)

	// CreateWallet creates a wallet with the given starting balance.
	// If the wallet already exists it is returned unchanged.
	CreateWallet(ctx context.Context, userID string, initialBalance int64) (*Wallet, error)

	// CompareAndSwap writes newBalance and appends txn atomically,
	// guarded by the expected wallet version.
	CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newBalance int64, txn *Transaction) error

	// TransactionByPlayID returns the transaction recorded for playID,
	// or (nil, nil) when none exists.
	TransactionByPlayID(ctx context.Context, userID string, playID string) (*Transaction, error)

	// Transactions returns up to limit most recent transactions for
	// userID, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}
