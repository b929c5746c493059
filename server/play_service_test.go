package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/errors"
	"github.com/remibonds525-star/loyalty-engine/game"
	"github.com/remibonds525-star/loyalty-engine/ledger"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
	"github.com/remibonds525-star/loyalty-engine/provider"
	"github.com/remibonds525-star/loyalty-engine/quota"
)

// stubSource replays scripted draws. Intn pops from ints, Float64 from
// floats, Perm always returns the scripted permutation.
type stubSource struct {
	ints   []int
	floats []float64
	perm   []int
}

func (s *stubSource) Intn(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func (s *stubSource) Float64() float64 {
	if len(s.floats) == 0 {
		return 0.99
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *stubSource) Perm(n int) []int {
	out := make([]int, n)
	copy(out, s.perm)
	return out
}

type playFixture struct {
	svc    *PlayService
	ledger *ledger.Service
	quota  *quota.Tracker
	pool   *jackpot.Service
	boards *game.BoardRegistry
}

func newPlayFixture(t *testing.T, src *stubSource) *playFixture {
	t.Helper()

	cfg := config.Default()
	logger := zerolog.Nop()

	ledgerSvc := ledger.NewService(ledger.NewMemoryStore(), logger)
	tracker, err := quota.NewTracker(quota.NewMemoryStore(), cfg.Quota, logger)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	pool := jackpot.NewService(jackpot.ServiceConfig{
		Store:             jackpot.NewMemoryStore(cfg.Games.Jackpot.BaseValue),
		BroadcastInterval: time.Hour,
		Logger:            logger,
	})
	t.Cleanup(pool.Stop)

	boards := game.NewBoardRegistry()
	t.Cleanup(boards.Stop)

	svc := NewPlayService(PlayServiceOptions{
		Ledger: ledgerSvc,
		Quota:  tracker,
		Pool:   pool,
		Saw:    game.NewSawEngine(cfg.Games.Jackpot, pool, src),
		Mines:  game.NewMinesEngine(cfg.Games.Mines.CellReward, src),
		Daily:  game.NewDailyEngine(cfg.Games.Daily.Prizes, src),
		Boards: boards,
		Audit:  provider.NewAuditProvider(cfg, nil, logger),
		Games:  cfg.Games,
		Logger: logger,
	})

	return &playFixture{
		svc:    svc,
		ledger: ledgerSvc,
		quota:  tracker,
		pool:   pool,
		boards: boards,
	}
}

// A brand-new tier-0 user gets exactly one free spin. A forced scrap_won
// credits the full payout with no cost deducted, consumes the free play
// and leaves a single transaction behind.
func TestSpinSawFreeSpinForNewUser(t *testing.T) {
	ctx := context.Background()
	// Intn misses the lucky number, Float64 lands in the scrap_won band
	src := &stubSource{ints: []int{42}, floats: []float64{0.6}}
	fx := newPlayFixture(t, src)

	result, err := fx.svc.SpinSaw(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("SpinSaw: %v", err)
	}
	if !result.Free {
		t.Error("expected a free spin for a fresh tier-0 user")
	}
	if result.Label != ledger.ReasonScrapWon {
		t.Errorf("label = %q, want %q", result.Label, ledger.ReasonScrapWon)
	}
	if result.Payout != 15 {
		t.Errorf("payout = %d, want 15", result.Payout)
	}
	if result.NewBalance != 15 {
		t.Errorf("balance = %d, want 15", result.NewBalance)
	}

	remaining, err := fx.quota.FreePlaysRemaining(ctx, "user-1", quota.GameSaw, 0)
	if err != nil {
		t.Fatalf("FreePlaysRemaining: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining free plays = %d, want 0", remaining)
	}

	history, err := fx.svc.History(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Reason != ledger.ReasonScrapWon || history[0].Amount != 15 {
		t.Errorf("txn = %s/%d, want %s/15", history[0].Reason, history[0].Amount, ledger.ReasonScrapWon)
	}

	// Non-jackpot spins tax the pool by one coin
	value, err := fx.pool.Value(ctx)
	if err != nil {
		t.Fatalf("pool Value: %v", err)
	}
	if value != 10001 {
		t.Errorf("pool = %d, want 10001", value)
	}
}

// With the free play spent and a balance below the spin cost, a paid
// spin is rejected without touching wallet, quota or pool.
func TestSpinSawRejectsUnderfundedPaidSpin(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{ints: []int{42, 42}, floats: []float64{0.6, 0.6}}
	fx := newPlayFixture(t, src)

	if _, err := fx.svc.SpinSaw(ctx, "user-1", 0); err != nil {
		t.Fatalf("free spin: %v", err)
	}

	_, err := fx.svc.SpinSaw(ctx, "user-1", 0)
	if errors.GetCode(err) != errors.ErrInsufficientFunds {
		t.Fatalf("err = %v, want insufficient funds", err)
	}

	balance, err := fx.svc.Balance(ctx, "user-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 15 {
		t.Errorf("balance = %d, want 15 after rejected spin", balance)
	}
	history, _ := fx.svc.History(ctx, "user-1", 10)
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1 (rejected spin left a trace)", len(history))
	}
}

// A funded paid spin charges the cost and settles the net amount.
func TestSpinSawPaidSpinSettlesNet(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{ints: []int{42, 42}, floats: []float64{0.6, 0.6}}
	fx := newPlayFixture(t, src)

	if _, err := fx.svc.SpinSaw(ctx, "user-1", 0); err != nil {
		t.Fatalf("free spin: %v", err)
	}
	if _, err := fx.svc.Purchase(ctx, "user-1", 100, "ref-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	result, err := fx.svc.SpinSaw(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("paid spin: %v", err)
	}
	if result.Free {
		t.Error("expected a paid spin once the free play is spent")
	}
	// 15 free + 100 purchased, then scrap_won pays 15 against a 20 cost
	if result.NewBalance != 110 {
		t.Errorf("balance = %d, want 110", result.NewBalance)
	}

	value, _ := fx.pool.Value(ctx)
	if value != 10002 {
		t.Errorf("pool = %d, want 10002 after two taxed spins", value)
	}
}

// The lucky draw takes the whole pool, resets it to base, and is exempt
// from the tax.
func TestSpinSawJackpot(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{ints: []int{7777}}
	fx := newPlayFixture(t, src)

	result, err := fx.svc.SpinSaw(ctx, "winner", 0)
	if err != nil {
		t.Fatalf("SpinSaw: %v", err)
	}
	if result.Label != ledger.ReasonJackpotWin {
		t.Errorf("label = %q, want %q", result.Label, ledger.ReasonJackpotWin)
	}
	if result.Payout != 10000 {
		t.Errorf("payout = %d, want the full base pool", result.Payout)
	}
	if result.NewBalance != 10000 {
		t.Errorf("balance = %d, want 10000", result.NewBalance)
	}

	value, _ := fx.pool.Value(ctx)
	if value != 10000 {
		t.Errorf("pool = %d, want reset to base with no tax", value)
	}
}

// A saw crash on a small balance is absorbed down to zero and the
// ledger records the applied amount.
func TestSpinSawCrashClampsToZero(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{ints: []int{42, 42}, floats: []float64{0.6, 0.001}}
	fx := newPlayFixture(t, src)

	// free scrap_won leaves balance 15; a second free play needs tier 1
	if _, err := fx.svc.SpinSaw(ctx, "user-1", 1); err != nil {
		t.Fatalf("first spin: %v", err)
	}
	result, err := fx.svc.SpinSaw(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("crash spin: %v", err)
	}
	if result.Label != ledger.ReasonSawCrash {
		t.Fatalf("label = %q, want %q", result.Label, ledger.ReasonSawCrash)
	}
	if result.NewBalance != 0 {
		t.Errorf("balance = %d, want 0 after clamped crash", result.NewBalance)
	}

	history, _ := fx.svc.History(ctx, "user-1", 10)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Amount != -15 {
		t.Errorf("crash txn amount = %d, want -15 (clamped)", history[0].Amount)
	}
}

func TestMinesBoardLifecycle(t *testing.T) {
	ctx := context.Background()
	// mines land on cells 7 and 8
	src := &stubSource{perm: []int{7, 8, 0, 1, 2, 3, 4, 5, 6}}
	fx := newPlayFixture(t, src)

	created, err := fx.svc.CreateMinesBoard(ctx, "digger", 0)
	if err != nil {
		t.Fatalf("CreateMinesBoard: %v", err)
	}
	if !created.Free {
		t.Error("expected the first board of the day to be free")
	}

	for i, wantPending := range []int64{25, 50} {
		res, err := fx.svc.RevealMinesCell(ctx, "digger", created.BoardID, i)
		if err != nil {
			t.Fatalf("reveal %d: %v", i, err)
		}
		if res.CellOutcome != game.CellSafe {
			t.Fatalf("cell %d = %q, want safe", i, res.CellOutcome)
		}
		if res.Pending != wantPending {
			t.Errorf("pending = %d, want %d", res.Pending, wantPending)
		}
	}

	cashed, err := fx.svc.CashOutMines(ctx, "digger", created.BoardID)
	if err != nil {
		t.Fatalf("CashOutMines: %v", err)
	}
	if cashed.CreditedAmount != 50 {
		t.Errorf("credited = %d, want 50", cashed.CreditedAmount)
	}
	if cashed.NewBalance != 50 {
		t.Errorf("balance = %d, want 50", cashed.NewBalance)
	}

	// A second cash-out finds nothing to settle
	if _, err := fx.svc.CashOutMines(ctx, "digger", created.BoardID); errors.GetCode(err) != errors.ErrInvalidState {
		t.Errorf("second cash-out err = %v, want invalid state", err)
	}

	state, err := fx.svc.GetMinesBoard(ctx, "digger", created.BoardID)
	if err != nil {
		t.Fatalf("GetMinesBoard: %v", err)
	}
	if state.BoardStatus != game.BoardCashedOut {
		t.Errorf("status = %q, want cashed_out", state.BoardStatus)
	}
}

func TestMinesBoardHiddenFromOtherUsers(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{perm: []int{7, 8, 0, 1, 2, 3, 4, 5, 6}}
	fx := newPlayFixture(t, src)

	created, err := fx.svc.CreateMinesBoard(ctx, "owner", 0)
	if err != nil {
		t.Fatalf("CreateMinesBoard: %v", err)
	}

	if _, err := fx.svc.GetMinesBoard(ctx, "stranger", created.BoardID); errors.GetCode(err) != errors.ErrBoardNotFound {
		t.Errorf("err = %v, want board not found for another user", err)
	}
	if _, err := fx.svc.RevealMinesCell(ctx, "stranger", created.BoardID, 0); errors.GetCode(err) != errors.ErrBoardNotFound {
		t.Errorf("reveal err = %v, want board not found for another user", err)
	}
}

func TestMinesPaidBoardChargesEntry(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{perm: []int{7, 8, 0, 1, 2, 3, 4, 5, 6}}
	fx := newPlayFixture(t, src)

	if _, err := fx.svc.Purchase(ctx, "digger", 100, "ref-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	// exhaust the single tier-0 free play
	if _, err := fx.svc.CreateMinesBoard(ctx, "digger", 0); err != nil {
		t.Fatalf("free board: %v", err)
	}

	created, err := fx.svc.CreateMinesBoard(ctx, "digger", 0)
	if err != nil {
		t.Fatalf("paid board: %v", err)
	}
	if created.Free {
		t.Error("expected a paid board once the free play is spent")
	}
	if created.NewBalance != 75 {
		t.Errorf("balance = %d, want 75 after the 25 entry fee", created.NewBalance)
	}
}

func TestSpinDailyOncePerDay(t *testing.T) {
	ctx := context.Background()
	// wheel lands on segment 4 (prize 50)
	src := &stubSource{ints: []int{4}}
	fx := newPlayFixture(t, src)

	result, err := fx.svc.SpinDaily(ctx, "user-1")
	if err != nil {
		t.Fatalf("SpinDaily: %v", err)
	}
	if result.Segment != 4 || result.Prize != 50 {
		t.Errorf("outcome = %d/%d, want segment 4 prize 50", result.Segment, result.Prize)
	}
	if result.NewBalance != 50 {
		t.Errorf("balance = %d, want 50", result.NewBalance)
	}

	if _, err := fx.svc.SpinDaily(ctx, "user-1"); errors.GetCode(err) != errors.ErrQuotaExceeded {
		t.Errorf("second spin err = %v, want quota exceeded", err)
	}
}

func TestPurchaseIdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	fx := newPlayFixture(t, &stubSource{})

	first, err := fx.svc.Purchase(ctx, "buyer", 500, "order-42")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if first != 500 {
		t.Errorf("balance = %d, want 500", first)
	}

	// gateway retry with the same reference applies nothing
	second, err := fx.svc.Purchase(ctx, "buyer", 500, "order-42")
	if err != nil {
		t.Fatalf("retried Purchase: %v", err)
	}
	if second != 500 {
		t.Errorf("balance after retry = %d, want 500", second)
	}

	if _, err := fx.svc.Purchase(ctx, "buyer", 0, "order-43"); errors.GetCode(err) != errors.ErrInvalidRequest {
		t.Errorf("zero amount err = %v, want invalid request", err)
	}
	if _, err := fx.svc.Purchase(ctx, "buyer", 10, ""); errors.GetCode(err) != errors.ErrInvalidRequest {
		t.Errorf("missing reference err = %v, want invalid request", err)
	}
}

// flakyQuotaStore fails its first Consume calls and then recovers,
// standing in for a transient storage outage after the ledger commit.
type flakyQuotaStore struct {
	quota.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyQuotaStore) Consume(ctx context.Context, userID string, game string, day string, playID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New(errors.ErrStorageUnavailable, "storage unavailable")
	}
	return f.Store.Consume(ctx, userID, game, day, playID)
}

// A quota commit that fails after the ledger commit is re-attempted in
// the background until the free play is counted, so the user is not
// double-granted.
func TestQuotaCommitRetriesAfterStorageError(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{ints: []int{42}, floats: []float64{0.6}}

	cfg := config.Default()
	logger := zerolog.Nop()

	store := &flakyQuotaStore{Store: quota.NewMemoryStore(), failures: 2}
	tracker, err := quota.NewTracker(store, cfg.Quota, logger)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	pool := jackpot.NewService(jackpot.ServiceConfig{
		Store:             jackpot.NewMemoryStore(cfg.Games.Jackpot.BaseValue),
		BroadcastInterval: time.Hour,
		Logger:            logger,
	})
	t.Cleanup(pool.Stop)
	boards := game.NewBoardRegistry()
	t.Cleanup(boards.Stop)

	svc := NewPlayService(PlayServiceOptions{
		Ledger: ledger.NewService(ledger.NewMemoryStore(), logger),
		Quota:  tracker,
		Pool:   pool,
		Saw:    game.NewSawEngine(cfg.Games.Jackpot, pool, src),
		Mines:  game.NewMinesEngine(cfg.Games.Mines.CellReward, src),
		Daily:  game.NewDailyEngine(cfg.Games.Daily.Prizes, src),
		Boards: boards,
		Audit:  provider.NewAuditProvider(cfg, nil, logger),
		Games:  cfg.Games,
		Logger: logger,
	})
	svc.quotaRetryDelay = time.Millisecond

	res, err := svc.SpinSaw(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("SpinSaw: %v", err)
	}
	if !res.Free {
		t.Fatal("expected a free spin")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		remaining, err := tracker.FreePlaysRemaining(ctx, "u1", quota.GameSaw, 0)
		if err != nil {
			t.Fatalf("FreePlaysRemaining: %v", err)
		}
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("free play never counted, %d remaining", remaining)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
