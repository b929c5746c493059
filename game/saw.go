package game

import (
	"context"

	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/ledger"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
	"github.com/remibonds525-star/loyalty-engine/pkg/rng"
)

// House-weighted odds table. Left-closed intervals over [0,1), checked
// in order.
const (
	sawCrashBound     = 0.015
	zeroYieldBound    = 0.55
	precisionCutBound = 0.88

	sawCrashPayout     = -100
	scrapWonPayout     = 15
	precisionCutPayout = 45
)

// SawOutcome is the resolved result of one spin
type SawOutcome struct {
	Label   string `json:"label"`
	Payout  int64  `json:"payout"`
	Jackpot bool   `json:"jackpot"`
}

// SawEngine resolves spins of the saw. It is stateless: every outcome is
// a pure function of the two draws, except the jackpot branch which
// consults the shared pool.
type SawEngine struct {
	pool        *jackpot.Service
	rand        rng.Source
	luckyNumber int
	rollSpace   int
}

// NewSawEngine creates a saw engine
func NewSawEngine(cfg config.JackpotConfig, pool *jackpot.Service, src rng.Source) *SawEngine {
	return &SawEngine{
		pool:        pool,
		rand:        src,
		luckyNumber: cfg.LuckyNumber,
		rollSpace:   cfg.RollSpace,
	}
}

// ResolveSpin draws the jackpot trigger and, when it misses, the odds
// roll. The jackpot branch takes the whole pool and skips the odds
// table.
func (e *SawEngine) ResolveSpin(ctx context.Context) (*SawOutcome, error) {
	jackpotRoll := e.rand.Intn(e.rollSpace)
	if jackpotRoll == e.luckyNumber {
		payout, _, err := e.pool.TryPayout(ctx, true)
		if err != nil {
			return nil, err
		}
		return &SawOutcome{
			Label:   ledger.ReasonJackpotWin,
			Payout:  payout,
			Jackpot: true,
		}, nil
	}

	roll := e.rand.Float64()
	switch {
	case roll < sawCrashBound:
		return &SawOutcome{Label: ledger.ReasonSawCrash, Payout: sawCrashPayout}, nil
	case roll < zeroYieldBound:
		return &SawOutcome{Label: ledger.ReasonZeroYield, Payout: 0}, nil
	case roll < precisionCutBound:
		return &SawOutcome{Label: ledger.ReasonScrapWon, Payout: scrapWonPayout}, nil
	default:
		return &SawOutcome{Label: ledger.ReasonPrecisionCut, Payout: precisionCutPayout}, nil
	}
}
