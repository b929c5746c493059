package game

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/ledger"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
	"github.com/remibonds525-star/loyalty-engine/pkg/rng"
)

// scriptedSource replays fixed draws so outcomes can be forced
type scriptedSource struct {
	ints   []int
	floats []float64
	perm   []int
	i, f   int
}

func (s *scriptedSource) Intn(n int) int {
	v := s.ints[s.i%len(s.ints)]
	s.i++
	return v % n
}

func (s *scriptedSource) Float64() float64 {
	v := s.floats[s.f%len(s.floats)]
	s.f++
	return v
}

func (s *scriptedSource) Perm(n int) []int {
	if s.perm != nil {
		return s.perm
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newTestPool(baseValue int64) *jackpot.Service {
	return jackpot.NewService(jackpot.ServiceConfig{
		Store:             jackpot.NewMemoryStore(baseValue),
		BroadcastInterval: time.Hour,
		Logger:            zerolog.Nop(),
	})
}

func jackpotTestConfig() config.JackpotConfig {
	return config.JackpotConfig{BaseValue: 10000, LuckyNumber: 7777, RollSpace: 100000}
}

func TestResolveSpinOddsTable(t *testing.T) {
	tests := []struct {
		name       string
		oddsRoll   float64
		wantLabel  string
		wantPayout int64
	}{
		{name: "crash at interval start", oddsRoll: 0.0, wantLabel: ledger.ReasonSawCrash, wantPayout: -100},
		{name: "crash just below bound", oddsRoll: 0.0149, wantLabel: ledger.ReasonSawCrash, wantPayout: -100},
		{name: "zero yield at bound", oddsRoll: 0.015, wantLabel: ledger.ReasonZeroYield, wantPayout: 0},
		{name: "zero yield just below bound", oddsRoll: 0.5499, wantLabel: ledger.ReasonZeroYield, wantPayout: 0},
		{name: "scrap at bound", oddsRoll: 0.55, wantLabel: ledger.ReasonScrapWon, wantPayout: 15},
		{name: "scrap just below bound", oddsRoll: 0.8799, wantLabel: ledger.ReasonScrapWon, wantPayout: 15},
		{name: "precision cut at bound", oddsRoll: 0.88, wantLabel: ledger.ReasonPrecisionCut, wantPayout: 45},
		{name: "precision cut near one", oddsRoll: 0.9999, wantLabel: ledger.ReasonPrecisionCut, wantPayout: 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newTestPool(10000)
			defer pool.Stop()

			src := &scriptedSource{ints: []int{0}, floats: []float64{tt.oddsRoll}}
			engine := NewSawEngine(jackpotTestConfig(), pool, src)

			outcome, err := engine.ResolveSpin(context.Background())
			if err != nil {
				t.Fatalf("ResolveSpin: %v", err)
			}
			if outcome.Label != tt.wantLabel {
				t.Errorf("expected label %s, got %s", tt.wantLabel, outcome.Label)
			}
			if outcome.Payout != tt.wantPayout {
				t.Errorf("expected payout %d, got %d", tt.wantPayout, outcome.Payout)
			}
			if outcome.Jackpot {
				t.Error("odds-table outcome must not be a jackpot")
			}
		})
	}
}

func TestResolveSpinJackpotTrigger(t *testing.T) {
	pool := newTestPool(10000)
	defer pool.Stop()
	ctx := context.Background()

	if err := pool.AddTax(ctx, 345); err != nil {
		t.Fatalf("AddTax: %v", err)
	}

	// the lucky roll skips the odds table entirely
	src := &scriptedSource{ints: []int{7777}, floats: []float64{0.0}}
	engine := NewSawEngine(jackpotTestConfig(), pool, src)

	outcome, err := engine.ResolveSpin(ctx)
	if err != nil {
		t.Fatalf("ResolveSpin: %v", err)
	}
	if outcome.Label != ledger.ReasonJackpotWin {
		t.Errorf("expected jackpot_win, got %s", outcome.Label)
	}
	if !outcome.Jackpot {
		t.Error("expected jackpot flag set")
	}
	if outcome.Payout != 10345 {
		t.Errorf("expected payout 10345, got %d", outcome.Payout)
	}

	value, err := pool.Value(ctx)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != 10000 {
		t.Errorf("expected pool reset to base, got %d", value)
	}
}

func TestResolveSpinDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1M-spin simulation in short mode")
	}

	pool := newTestPool(10000)
	defer pool.Stop()
	ctx := context.Background()

	engine := NewSawEngine(jackpotTestConfig(), pool, rng.NewSeeded(1))

	const spins = 1_000_000
	counts := map[string]int{}
	for i := 0; i < spins; i++ {
		outcome, err := engine.ResolveSpin(ctx)
		if err != nil {
			t.Fatalf("ResolveSpin: %v", err)
		}
		counts[outcome.Label]++
	}

	// expected ~10 jackpots at 1/100000
	jackpots := counts[ledger.ReasonJackpotWin]
	if jackpots < 1 || jackpots > 30 {
		t.Errorf("expected roughly 10 jackpots over %d spins, got %d", spins, jackpots)
	}

	fraction := func(label string) float64 {
		return float64(counts[label]) / float64(spins)
	}
	checks := []struct {
		label    string
		lo, hi   float64
		expected float64
	}{
		{label: ledger.ReasonSawCrash, lo: 0.012, hi: 0.018, expected: 0.015},
		{label: ledger.ReasonZeroYield, lo: 0.525, hi: 0.545, expected: 0.535},
		{label: ledger.ReasonScrapWon, lo: 0.32, hi: 0.34, expected: 0.33},
		{label: ledger.ReasonPrecisionCut, lo: 0.11, hi: 0.13, expected: 0.12},
	}
	for _, c := range checks {
		got := fraction(c.label)
		if got < c.lo || got > c.hi {
			t.Errorf("%s fraction %.4f outside [%.3f, %.3f] (design %.3f)",
				c.label, got, c.lo, c.hi, c.expected)
		}
	}
}
