package ledger

import "time"

// Transaction reason tags. The reason on a transaction is the outcome
// label of the play that produced it.
const (
	ReasonJackpotWin   = "jackpot_win"
	ReasonSawCrash     = "saw_crash"
	ReasonZeroYield    = "zero_yield"
	ReasonScrapWon     = "scrap_won"
	ReasonPrecisionCut = "precision_cut"
	ReasonMinesEntry   = "mines_entry"
	ReasonMinesWin     = "mines_win"
	ReasonDailySpinWin = "daily_spin_win"
	ReasonPurchase     = "purchase"
)

// Wallet holds a user's coin balance. Version increments on every
// balance write and drives the compare-and-swap update path.
type Wallet struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Version int64  `json:"version"`
}

// Transaction is one append-only ledger row. For every user the sum of
// transaction amounts plus the initial balance equals the wallet balance.
type Transaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PlayID    string    `json:"play_id,omitempty"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
