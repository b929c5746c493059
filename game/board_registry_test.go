package game

import (
	"testing"
	"time"
)

func TestSweepKeepsActiveBoardsPastTerminalAge(t *testing.T) {
	r := NewBoardRegistry()
	defer r.Stop()

	engine := newScriptedMinesEngine()
	board := engine.NewBoard("u1", false)
	if _, err := engine.Reveal(board, 2); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	board.CreatedAt = time.Now().Add(-2 * terminalMaxAge)
	r.Put(board)

	r.sweepOnce(time.Now())

	// an active board with pending winnings survives the terminal sweep
	got, err := r.Get(board.ID, "u1")
	if err != nil {
		t.Fatalf("expected active board to survive sweep, got %v", err)
	}
	if got.Snapshot().Pending != 25 {
		t.Errorf("expected pending winnings intact, got %d", got.Snapshot().Pending)
	}
}

func TestSweepDropsTerminalBoardsByAge(t *testing.T) {
	r := NewBoardRegistry()
	defer r.Stop()

	engine := newScriptedMinesEngine()

	old := engine.NewBoard("u1", false)
	if _, err := engine.Reveal(old, 0); err != nil { // mine, busts the board
		t.Fatalf("Reveal: %v", err)
	}
	old.CreatedAt = time.Now().Add(-2 * terminalMaxAge)
	r.Put(old)

	fresh := engine.NewBoard("u1", false)
	if _, err := engine.Reveal(fresh, 0); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	r.Put(fresh)

	r.sweepOnce(time.Now())

	if _, err := r.Get(old.ID, "u1"); err == nil {
		t.Error("expected old busted board to be swept")
	}
	// recently finished boards stay readable for no-op replays
	if _, err := r.Get(fresh.ID, "u1"); err != nil {
		t.Errorf("expected fresh busted board to survive, got %v", err)
	}
}

func TestSweepAbandonsStaleActiveBoards(t *testing.T) {
	r := NewBoardRegistry()
	defer r.Stop()

	engine := newScriptedMinesEngine()
	board := engine.NewBoard("u1", false)
	board.CreatedAt = time.Now().Add(-2 * abandonAge)
	r.Put(board)

	r.sweepOnce(time.Now())

	if _, err := r.Get(board.ID, "u1"); err == nil {
		t.Error("expected abandoned board to be swept")
	}
}
