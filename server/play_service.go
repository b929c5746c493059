package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/errors"
	"github.com/remibonds525-star/loyalty-engine/events/kafka"
	"github.com/remibonds525-star/loyalty-engine/game"
	"github.com/remibonds525-star/loyalty-engine/ledger"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
	"github.com/remibonds525-star/loyalty-engine/provider"
	"github.com/remibonds525-star/loyalty-engine/quota"
)

const (
	quotaRetryAttempts       = 5
	defaultQuotaRetryDelay   = 2 * time.Second
	quotaRetryAttemptTimeout = 5 * time.Second
)

// PlayService orchestrates one play request end to end: quota decision,
// funds check, outcome resolution, the single ledger commit, then quota
// and pool bookkeeping. The ledger commit is the point of truth: any
// error before it leaves no trace, and bookkeeping after it is
// idempotent per play id.
type PlayService struct {
	ledger *ledger.Service
	quota  *quota.Tracker
	pool   *jackpot.Service
	saw    *game.SawEngine
	mines  *game.MinesEngine
	daily  *game.DailyEngine
	boards *game.BoardRegistry
	audit  *provider.AuditProvider
	games  config.GamesConfig
	logger zerolog.Logger

	quotaRetryDelay time.Duration
}

// PlayServiceOptions wires the collaborators of a PlayService
type PlayServiceOptions struct {
	Ledger  *ledger.Service
	Quota   *quota.Tracker
	Pool    *jackpot.Service
	Saw     *game.SawEngine
	Mines   *game.MinesEngine
	Daily   *game.DailyEngine
	Boards  *game.BoardRegistry
	Audit   *provider.AuditProvider
	Games   config.GamesConfig
	Logger  zerolog.Logger
}

// NewPlayService creates a play orchestrator
func NewPlayService(opts PlayServiceOptions) *PlayService {
	return &PlayService{
		ledger: opts.Ledger,
		quota:  opts.Quota,
		pool:   opts.Pool,
		saw:    opts.Saw,
		mines:  opts.Mines,
		daily:  opts.Daily,
		boards: opts.Boards,
		audit:  opts.Audit,
		games:  opts.Games,
		logger: opts.Logger.With().Str("service", "play").Logger(),

		quotaRetryDelay: defaultQuotaRetryDelay,
	}
}

// SawPlayResult is the settled result of one saw spin
type SawPlayResult struct {
	PlayID     string `json:"play_id"`
	Label      string `json:"label"`
	Payout     int64  `json:"payout"`
	Free       bool   `json:"free"`
	NewBalance int64  `json:"new_balance"`
}

// MinesCreateResult reports a newly created board
type MinesCreateResult struct {
	BoardID    string `json:"board_id"`
	Free       bool   `json:"free"`
	NewBalance int64  `json:"new_balance"`
}

// MinesRevealResult reports the effect of one reveal
type MinesRevealResult struct {
	BoardID     string `json:"board_id"`
	CellOutcome string `json:"cell_outcome"`
	BoardStatus string `json:"board_status"`
	Pending     int64  `json:"pending"`
}

// MinesBoardState is the visible state of a board
type MinesBoardState struct {
	BoardID     string   `json:"board_id"`
	Cells       []string `json:"cells"`
	BoardStatus string   `json:"board_status"`
	Pending     int64    `json:"pending"`
	Free        bool     `json:"free"`
}

// MinesCashOutResult reports a settled cash-out
type MinesCashOutResult struct {
	BoardID        string `json:"board_id"`
	CreditedAmount int64  `json:"credited_amount"`
	NewBalance     int64  `json:"new_balance"`
}

// DailyPlayResult is the settled result of one daily spin
type DailyPlayResult struct {
	PlayID     string `json:"play_id"`
	Segment    int    `json:"segment"`
	Prize      int64  `json:"prize"`
	NewBalance int64  `json:"new_balance"`
}

// SpinSaw runs one spin of the saw for the user
func (s *PlayService) SpinSaw(ctx context.Context, userID string, tier int) (*SawPlayResult, error) {
	playID := uuid.New().String()

	if _, err := s.ledger.EnsureWallet(ctx, userID, 0); err != nil {
		return nil, err
	}

	remaining, err := s.quota.FreePlaysRemaining(ctx, userID, quota.GameSaw, tier)
	if err != nil {
		return nil, err
	}
	free := remaining > 0

	var cost int64
	if !free {
		cost = s.games.Saw.Cost
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		// advisory check; the ledger commit re-verifies atomically
		if balance < cost {
			return nil, errors.New(errors.ErrInsufficientFunds, "insufficient funds for a paid spin")
		}
	}

	outcome, err := s.saw.ResolveSpin(ctx)
	if err != nil {
		return nil, err
	}

	net := outcome.Payout - cost
	var txn *ledger.Transaction
	var newBalance int64
	if outcome.Label == ledger.ReasonSawCrash {
		// the crash penalty may exceed the balance and is absorbed
		// down to zero rather than rejected
		txn, newBalance, err = s.ledger.ApplyDeltaClamped(ctx, userID, net, outcome.Label, playID)
	} else {
		txn, newBalance, err = s.ledger.ApplyDelta(ctx, userID, net, outcome.Label, playID)
	}
	if err != nil {
		return nil, err
	}

	s.settleSaw(ctx, userID, playID, free, outcome)

	s.auditPlay(ctx, kafka.PlayEvent{
		PlayID:  playID,
		UserID:  userID,
		Game:    quota.GameSaw,
		Reason:  outcome.Label,
		Amount:  txn.Amount,
		Balance: newBalance,
		Free:    free,
	})

	return &SawPlayResult{
		PlayID:     playID,
		Label:      outcome.Label,
		Payout:     outcome.Payout,
		Free:       free,
		NewBalance: newBalance,
	}, nil
}

// settleSaw runs the post-commit bookkeeping. Failures here never fail
// the play; they are logged and recovered by idempotent retry.
func (s *PlayService) settleSaw(ctx context.Context, userID string, playID string, free bool, outcome *game.SawOutcome) {
	if free {
		if err := s.quota.ConsumeFreePlay(ctx, userID, quota.GameSaw, playID); err != nil {
			s.logger.Error().Err(err).Str("play_id", playID).Msg("saw quota commit failed")
			s.retryQuotaConsume(userID, quota.GameSaw, playID)
		}
	}
	if !outcome.Jackpot {
		if err := s.pool.AddTax(ctx, s.games.Saw.Tax); err != nil {
			s.logger.Error().Err(err).Str("play_id", playID).Msg("jackpot tax failed")
			return
		}
	}
	if value, err := s.pool.Value(ctx); err == nil {
		if err := s.audit.PublishPoolUpdate(ctx, kafka.PoolUpdateEvent{Value: value}); err != nil {
			s.logger.Warn().Err(err).Msg("pool update publish failed")
		}
	}
}

// retryQuotaConsume re-attempts a failed free-play commit off the
// request path. The play id makes repeats a no-op once any attempt
// lands, so a double grant cannot slip through a transient storage
// error.
func (s *PlayService) retryQuotaConsume(userID string, gameKey string, playID string) {
	go func() {
		for attempt := 1; attempt <= quotaRetryAttempts; attempt++ {
			time.Sleep(s.quotaRetryDelay)
			ctx, cancel := context.WithTimeout(context.Background(), quotaRetryAttemptTimeout)
			err := s.quota.ConsumeFreePlay(ctx, userID, gameKey, playID)
			cancel()
			if err == nil {
				return
			}
			s.logger.Error().Err(err).
				Str("play_id", playID).
				Str("game", gameKey).
				Int("attempt", attempt).
				Msg("quota commit retry failed")
		}
		s.logger.Error().
			Str("play_id", playID).
			Str("game", gameKey).
			Msg("quota commit abandoned after retries")
	}()
}

// CreateMinesBoard opens a new job-site board, charging the entry cost
// unless a free play is available
func (s *PlayService) CreateMinesBoard(ctx context.Context, userID string, tier int) (*MinesCreateResult, error) {
	playID := uuid.New().String()

	if _, err := s.ledger.EnsureWallet(ctx, userID, 0); err != nil {
		return nil, err
	}

	remaining, err := s.quota.FreePlaysRemaining(ctx, userID, quota.GameMines, tier)
	if err != nil {
		return nil, err
	}
	free := remaining > 0

	var newBalance int64
	var charged int64
	if free {
		newBalance, err = s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
	} else {
		charged = s.games.Mines.Cost
		_, newBalance, err = s.ledger.ApplyDelta(ctx, userID, -charged, ledger.ReasonMinesEntry, playID)
		if err != nil {
			return nil, err
		}
	}

	board := s.mines.NewBoard(userID, free)
	s.boards.Put(board)

	if free {
		if err := s.quota.ConsumeFreePlay(ctx, userID, quota.GameMines, playID); err != nil {
			s.logger.Error().Err(err).Str("play_id", playID).Msg("mines quota commit failed")
			s.retryQuotaConsume(userID, quota.GameMines, playID)
		}
	}

	s.auditPlay(ctx, kafka.PlayEvent{
		PlayID:  playID,
		UserID:  userID,
		Game:    quota.GameMines,
		Reason:  ledger.ReasonMinesEntry,
		Amount:  -charged,
		Balance: newBalance,
		Free:    free,
	})

	return &MinesCreateResult{
		BoardID:    board.ID,
		Free:       free,
		NewBalance: newBalance,
	}, nil
}

// RevealMinesCell uncovers one cell on the user's board
func (s *PlayService) RevealMinesCell(ctx context.Context, userID string, boardID string, index int) (*MinesRevealResult, error) {
	board, err := s.boards.Get(boardID, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.mines.Reveal(board, index)
	if err != nil {
		return nil, err
	}
	return &MinesRevealResult{
		BoardID:     boardID,
		CellOutcome: res.CellOutcome,
		BoardStatus: res.BoardStatus,
		Pending:     res.Pending,
	}, nil
}

// GetMinesBoard returns the visible state of the user's board
func (s *PlayService) GetMinesBoard(ctx context.Context, userID string, boardID string) (*MinesBoardState, error) {
	board, err := s.boards.Get(boardID, userID)
	if err != nil {
		return nil, err
	}
	snap := board.Snapshot()
	return &MinesBoardState{
		BoardID:     boardID,
		Cells:       board.CellsCopy(),
		BoardStatus: snap.BoardStatus,
		Pending:     snap.Pending,
		Free:        board.Free,
	}, nil
}

// CashOutMines settles an active board, crediting pending winnings.
// The play id is derived from the board id so a retried request after a
// partial failure finds the recorded credit instead of paying twice.
func (s *PlayService) CashOutMines(ctx context.Context, userID string, boardID string) (*MinesCashOutResult, error) {
	board, err := s.boards.Get(boardID, userID)
	if err != nil {
		return nil, err
	}

	playID := "mines-cashout:" + boardID
	var newBalance int64
	amount, err := s.mines.CashOut(board, func(pending int64) error {
		_, balance, err := s.ledger.ApplyDelta(ctx, userID, pending, ledger.ReasonMinesWin, playID)
		if err != nil {
			return err
		}
		newBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditPlay(ctx, kafka.PlayEvent{
		PlayID:  playID,
		UserID:  userID,
		Game:    quota.GameMines,
		Reason:  ledger.ReasonMinesWin,
		Amount:  amount,
		Balance: newBalance,
		Free:    board.Free,
	})

	return &MinesCashOutResult{
		BoardID:        boardID,
		CreditedAmount: amount,
		NewBalance:     newBalance,
	}, nil
}

// SpinDaily runs the once-a-day bonus wheel
func (s *PlayService) SpinDaily(ctx context.Context, userID string) (*DailyPlayResult, error) {
	playID := uuid.New().String()

	if _, err := s.ledger.EnsureWallet(ctx, userID, 0); err != nil {
		return nil, err
	}

	used, err := s.quota.PlaysUsedToday(ctx, userID, quota.GameDaily)
	if err != nil {
		return nil, err
	}
	if used >= 1 {
		return nil, errors.New(errors.ErrQuotaExceeded, "daily spin already used today")
	}

	outcome := s.daily.Spin()
	txn, newBalance, err := s.ledger.ApplyDelta(ctx, userID, outcome.Prize, ledger.ReasonDailySpinWin, playID)
	if err != nil {
		return nil, err
	}

	if err := s.quota.ConsumeFreePlay(ctx, userID, quota.GameDaily, playID); err != nil {
		s.logger.Error().Err(err).Str("play_id", playID).Msg("daily quota commit failed")
		s.retryQuotaConsume(userID, quota.GameDaily, playID)
	}

	s.auditPlay(ctx, kafka.PlayEvent{
		PlayID:  playID,
		UserID:  userID,
		Game:    quota.GameDaily,
		Reason:  ledger.ReasonDailySpinWin,
		Amount:  txn.Amount,
		Balance: newBalance,
		Free:    true,
	})

	return &DailyPlayResult{
		PlayID:     playID,
		Segment:    outcome.Segment,
		Prize:      outcome.Prize,
		NewBalance: newBalance,
	}, nil
}

// Purchase credits purchased coins, idempotent per gateway reference
func (s *PlayService) Purchase(ctx context.Context, userID string, amount int64, referenceID string) (int64, error) {
	if amount <= 0 {
		return 0, errors.New(errors.ErrInvalidRequest, "purchase amount must be positive")
	}
	if referenceID == "" {
		return 0, errors.New(errors.ErrInvalidRequest, "missing purchase reference")
	}

	if _, err := s.ledger.EnsureWallet(ctx, userID, 0); err != nil {
		return 0, err
	}

	playID := "purchase:" + referenceID
	txn, newBalance, err := s.ledger.ApplyDelta(ctx, userID, amount, ledger.ReasonPurchase, playID)
	if err != nil {
		return 0, err
	}

	s.auditPlay(ctx, kafka.PlayEvent{
		PlayID:  playID,
		UserID:  userID,
		Game:    "wallet",
		Reason:  ledger.ReasonPurchase,
		Amount:  txn.Amount,
		Balance: newBalance,
	})

	return newBalance, nil
}

// Balance returns the user's wallet balance
func (s *PlayService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// History returns the user's most recent transactions
func (s *PlayService) History(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return s.ledger.History(ctx, userID, limit)
}

// FreePlaysRemaining reports today's remaining free plays for a game
func (s *PlayService) FreePlaysRemaining(ctx context.Context, userID string, gameKey string, tier int) (int, error) {
	return s.quota.FreePlaysRemaining(ctx, userID, gameKey, tier)
}

// PoolValue returns the current jackpot pool value
func (s *PlayService) PoolValue(ctx context.Context) (int64, error) {
	return s.pool.Value(ctx)
}

func (s *PlayService) auditPlay(ctx context.Context, event kafka.PlayEvent) {
	if err := s.audit.RecordPlay(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("play_id", event.PlayID).Msg("audit publish failed")
	}
}
