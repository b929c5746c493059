package jackpot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestService() *Service {
	return NewService(ServiceConfig{
		Store:             NewMemoryStore(10000),
		BroadcastInterval: 10 * time.Millisecond,
		Logger:            zerolog.Nop(),
	})
}

func TestAddTaxAccumulates(t *testing.T) {
	svc := newTestService()
	defer svc.Stop()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.AddTax(ctx, 1); err != nil {
			t.Fatalf("AddTax: %v", err)
		}
	}

	value, err := svc.Value(ctx)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != 10005 {
		t.Errorf("expected 10005, got %d", value)
	}
}

func TestAddTaxConcurrentNoLostUpdates(t *testing.T) {
	svc := newTestService()
	defer svc.Stop()
	ctx := context.Background()

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := svc.AddTax(ctx, 1); err != nil {
				t.Errorf("AddTax: %v", err)
			}
		}()
	}
	wg.Wait()

	value, err := svc.Value(ctx)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != 10000+workers {
		t.Errorf("expected %d, got %d", 10000+workers, value)
	}
}

func TestTryPayout(t *testing.T) {
	svc := newTestService()
	defer svc.Stop()
	ctx := context.Background()

	if err := svc.AddTax(ctx, 500); err != nil {
		t.Fatalf("AddTax: %v", err)
	}

	// a losing draw leaves the pool untouched
	payout, won, err := svc.TryPayout(ctx, false)
	if err != nil {
		t.Fatalf("TryPayout(false): %v", err)
	}
	if won || payout != 0 {
		t.Errorf("expected no payout on losing draw, got won=%v payout=%d", won, payout)
	}

	payout, won, err = svc.TryPayout(ctx, true)
	if err != nil {
		t.Fatalf("TryPayout(true): %v", err)
	}
	if !won {
		t.Fatal("expected a winning payout")
	}
	if payout != 10500 {
		t.Errorf("expected payout 10500, got %d", payout)
	}

	value, err := svc.Value(ctx)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != 10000 {
		t.Errorf("expected pool reset to 10000, got %d", value)
	}
}

func TestTryPayoutSingleWinner(t *testing.T) {
	svc := newTestService()
	defer svc.Stop()
	ctx := context.Background()

	if err := svc.AddTax(ctx, 777); err != nil {
		t.Fatalf("AddTax: %v", err)
	}

	const winners = 2
	payouts := make([]int64, winners)
	var wg sync.WaitGroup
	wg.Add(winners)
	for i := 0; i < winners; i++ {
		go func(i int) {
			defer wg.Done()
			payout, won, err := svc.TryPayout(ctx, true)
			if err != nil {
				t.Errorf("TryPayout: %v", err)
				return
			}
			if !won {
				t.Error("expected winning draw to pay")
				return
			}
			payouts[i] = payout
		}(i)
	}
	wg.Wait()

	// exactly one caller sees the loaded pool, the other the reset base
	big, base := 0, 0
	for _, p := range payouts {
		switch p {
		case 10777:
			big++
		case 10000:
			base++
		default:
			t.Errorf("unexpected payout %d", p)
		}
	}
	if big != 1 || base != 1 {
		t.Errorf("expected one pre-reset and one base payout, got %v", payouts)
	}
}

func TestListenReceivesFlushedUpdates(t *testing.T) {
	svc := newTestService()
	defer svc.Stop()
	ctx := context.Background()

	updates, cancel := svc.Listen(ctx)
	defer cancel()

	if err := svc.AddTax(ctx, 42); err != nil {
		t.Fatalf("AddTax: %v", err)
	}

	select {
	case u := <-updates:
		if u.Value != 10042 {
			t.Errorf("expected broadcast value 10042, got %d", u.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flushed update")
	}
}
