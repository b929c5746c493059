package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/remibonds525-star/loyalty-engine/errors"
	"github.com/remibonds525-star/loyalty-engine/logging"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewService(store, logging.NewDefault()), store
}

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		name        string
		initial     int64
		amount      int64
		reason      string
		wantErrCode int
		wantBalance int64
	}{
		{
			name:        "credit increases balance",
			initial:     100,
			amount:      45,
			reason:      ReasonPrecisionCut,
			wantBalance: 145,
		},
		{
			name:        "debit decreases balance",
			initial:     100,
			amount:      -20,
			reason:      ReasonZeroYield,
			wantBalance: 80,
		},
		{
			name:        "debit to exactly zero succeeds",
			initial:     20,
			amount:      -20,
			reason:      ReasonZeroYield,
			wantBalance: 0,
		},
		{
			name:        "overdraw fails with insufficient funds",
			initial:     10,
			amount:      -20,
			reason:      ReasonZeroYield,
			wantErrCode: errors.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()
			if _, err := svc.EnsureWallet(ctx, "u1", tt.initial); err != nil {
				t.Fatalf("EnsureWallet: %v", err)
			}

			txn, balance, err := svc.ApplyDelta(ctx, "u1", tt.amount, tt.reason, "")
			if tt.wantErrCode != 0 {
				if err == nil {
					t.Fatalf("expected error code %d, got nil", tt.wantErrCode)
				}
				if got := errors.GetCode(err); got != tt.wantErrCode {
					t.Errorf("expected error code %d, got %d", tt.wantErrCode, got)
				}
				// no trace on failure
				history, _ := svc.History(ctx, "u1", 10)
				if len(history) != 0 {
					t.Errorf("expected no transactions after failed delta, got %d", len(history))
				}
				got, _ := svc.Balance(ctx, "u1")
				if got != tt.initial {
					t.Errorf("expected balance unchanged at %d, got %d", tt.initial, got)
				}
				return
			}

			if err != nil {
				t.Fatalf("ApplyDelta: %v", err)
			}
			if balance != tt.wantBalance {
				t.Errorf("expected balance %d, got %d", tt.wantBalance, balance)
			}
			if txn.Amount != tt.amount {
				t.Errorf("expected transaction amount %d, got %d", tt.amount, txn.Amount)
			}
			if txn.Reason != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, txn.Reason)
			}
		})
	}
}

func TestApplyDeltaUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.ApplyDelta(context.Background(), "ghost", 10, ReasonPurchase, "")
	if err == nil {
		t.Fatal("expected error for unknown user")
	}
	if got := errors.GetCode(err); got != errors.ErrUserNotFound {
		t.Errorf("expected code %d, got %d", errors.ErrUserNotFound, got)
	}
}

func TestApplyDeltaIdempotentPerPlayID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.EnsureWallet(ctx, "u1", 100); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}

	first, balance, err := svc.ApplyDelta(ctx, "u1", -20, ReasonZeroYield, "play-1")
	if err != nil {
		t.Fatalf("first ApplyDelta: %v", err)
	}
	if balance != 80 {
		t.Fatalf("expected balance 80, got %d", balance)
	}

	second, balance, err := svc.ApplyDelta(ctx, "u1", -20, ReasonZeroYield, "play-1")
	if err != nil {
		t.Fatalf("retried ApplyDelta: %v", err)
	}
	if balance != 80 {
		t.Errorf("expected balance still 80 after retry, got %d", balance)
	}
	if second.ID != first.ID {
		t.Errorf("expected retry to return recorded transaction %s, got %s", first.ID, second.ID)
	}

	history, err := svc.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected exactly one transaction, got %d", len(history))
	}
}

func TestApplyDeltaClamped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.EnsureWallet(ctx, "u1", 30); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}

	txn, balance, err := svc.ApplyDeltaClamped(ctx, "u1", -100, ReasonSawCrash, "play-1")
	if err != nil {
		t.Fatalf("ApplyDeltaClamped: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected balance clamped to 0, got %d", balance)
	}
	if txn.Amount != -30 {
		t.Errorf("expected recorded amount -30, got %d", txn.Amount)
	}
}

func TestConcurrentApplyDeltaNoLostUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.EnsureWallet(ctx, "u1", 0); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := svc.ApplyDelta(ctx, "u1", 10, ReasonPurchase, ""); err != nil {
				t.Errorf("ApplyDelta: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != workers*10 {
		t.Errorf("expected balance %d, got %d", workers*10, balance)
	}

	history, err := svc.History(ctx, "u1", workers+1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != workers {
		t.Errorf("expected %d transactions, got %d", workers, len(history))
	}
}

func TestLedgerReconciliation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const initial = int64(200)
	if _, err := svc.EnsureWallet(ctx, "u1", initial); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}

	deltas := []int64{-20, 15, -25, 45, -20, 100}
	for _, d := range deltas {
		if _, _, err := svc.ApplyDelta(ctx, "u1", d, ReasonPurchase, ""); err != nil {
			t.Fatalf("ApplyDelta(%d): %v", d, err)
		}
	}

	balance, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	history, err := svc.History(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	var sum int64
	for _, txn := range history {
		sum += txn.Amount
	}
	if balance != initial+sum {
		t.Errorf("ledger does not reconcile: balance %d, initial %d, txn sum %d", balance, initial, sum)
	}
}
