package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/remibonds525-star/loyalty-engine/errors"
	"github.com/remibonds525-star/loyalty-engine/pkg/rng"
)

// Board geometry
const (
	BoardCells = 9
	MineCount  = 2
)

// Board status values
const (
	BoardActive    = "active"
	BoardBusted    = "busted"
	BoardCashedOut = "cashed_out"
)

// Cell states as seen by the player
const (
	CellHidden = "hidden"
	CellSafe   = "safe"
	CellMine   = "mine"
)

// MinesBoard is one job-site board. It is owned by the session that
// created it; the mutex covers retried requests racing on the same
// board.
type MinesBoard struct {
	mu sync.Mutex

	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Free      bool      `json:"free"`
	Cells     []string  `json:"cells"`
	Pending   int64     `json:"pending"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	mines []int
}

// RevealResult describes the effect of one reveal
type RevealResult struct {
	CellOutcome string `json:"cell_outcome"`
	BoardStatus string `json:"board_status"`
	Pending     int64  `json:"pending"`
}

// MinesEngine creates and advances job-site boards
type MinesEngine struct {
	cellReward int64
	rand       rng.Source
}

// NewMinesEngine creates a mines engine
func NewMinesEngine(cellReward int64, src rng.Source) *MinesEngine {
	return &MinesEngine{cellReward: cellReward, rand: src}
}

// NewBoard places exactly two distinct mines uniformly among the nine
// cells. Whether the play is free is decided here, once, and never
// re-evaluated at cash-out.
func (e *MinesEngine) NewBoard(userID string, free bool) *MinesBoard {
	cells := make([]string, BoardCells)
	for i := range cells {
		cells[i] = CellHidden
	}
	return &MinesBoard{
		ID:        uuid.New().String(),
		UserID:    userID,
		Free:      free,
		Cells:     cells,
		Status:    BoardActive,
		CreatedAt: time.Now().UTC(),
		mines:     e.rand.Perm(BoardCells)[:MineCount],
	}
}

// Reveal uncovers one cell. Revealing on a finished board or an already
// revealed cell changes nothing and reports the current state.
func (e *MinesEngine) Reveal(b *MinesBoard, index int) (*RevealResult, error) {
	if index < 0 || index >= BoardCells {
		return nil, errors.New(errors.ErrInvalidRequest, "cell index out of range")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Status != BoardActive || b.Cells[index] != CellHidden {
		return &RevealResult{
			CellOutcome: b.Cells[index],
			BoardStatus: b.Status,
			Pending:     b.Pending,
		}, nil
	}

	if lo.Contains(b.mines, index) {
		b.Cells[index] = CellMine
		b.Status = BoardBusted
		// pending winnings are forfeited, never credited
		b.Pending = 0
	} else {
		b.Cells[index] = CellSafe
		b.Pending += e.cellReward
	}

	return &RevealResult{
		CellOutcome: b.Cells[index],
		BoardStatus: b.Status,
		Pending:     b.Pending,
	}, nil
}

// CashOut finishes an active board. credit is invoked with the pending
// amount while the board is held; the board reaches cashed_out only
// when credit succeeds, so a failed wallet write leaves the board
// active and the retry sees the same pending amount.
func (e *MinesEngine) CashOut(b *MinesBoard, credit func(amount int64) error) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Status != BoardActive || b.Pending <= 0 {
		return 0, errors.New(errors.ErrInvalidState, "nothing to cash out")
	}
	if err := credit(b.Pending); err != nil {
		return 0, err
	}
	b.Status = BoardCashedOut
	return b.Pending, nil
}

// Snapshot returns the board state safe to hand to the presentation
// layer. Mine positions stay hidden while the board is active.
func (b *MinesBoard) Snapshot() *RevealResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &RevealResult{
		BoardStatus: b.Status,
		Pending:     b.Pending,
	}
}

// CellsCopy returns the visible cell states
func (b *MinesBoard) CellsCopy() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.Cells))
	copy(out, b.Cells)
	return out
}

// MineIndices exposes mine placement for verification in tests
func (b *MinesBoard) MineIndices() []int {
	out := make([]int, len(b.mines))
	copy(out, b.mines)
	return out
}
