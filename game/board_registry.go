package game

import (
	"sync"
	"time"

	"github.com/remibonds525-star/loyalty-engine/errors"
)

const (
	// finished boards stay readable for this long
	terminalMaxAge = time.Hour
	// an active board untouched for this long counts as abandoned and
	// its pending winnings are forfeited
	abandonAge    = 24 * time.Hour
	sweepInterval = 10 * time.Minute
)

// BoardRegistry holds live mines boards by id. Boards stay registered
// after reaching a terminal state so repeated reveals and cash-outs can
// answer with the board's final state; the sweeper removes finished
// boards by age and abandons active ones only after a much longer
// window.
type BoardRegistry struct {
	mu     sync.RWMutex
	boards map[string]*MinesBoard

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewBoardRegistry creates a registry and starts its sweeper
func NewBoardRegistry() *BoardRegistry {
	r := &BoardRegistry{
		boards:   make(map[string]*MinesBoard),
		stopChan: make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Put registers a board
func (r *BoardRegistry) Put(b *MinesBoard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards[b.ID] = b
}

// Get returns the board for id, checking that userID owns it
func (r *BoardRegistry) Get(id string, userID string) (*MinesBoard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[id]
	if !ok {
		return nil, errors.New(errors.ErrBoardNotFound, "board not found")
	}
	if b.UserID != userID {
		// do not leak board existence to other users
		return nil, errors.New(errors.ErrBoardNotFound, "board not found")
	}
	return b, nil
}

// Remove drops a board from the registry
func (r *BoardRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, id)
}

// Stop stops the sweeper
func (r *BoardRegistry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *BoardRegistry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweepOnce(time.Now())
		}
	}
}

func (r *BoardRegistry) sweepOnce(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.boards {
		age := now.Sub(b.CreatedAt)
		terminal := b.Snapshot().BoardStatus != BoardActive
		if terminal && age > terminalMaxAge {
			delete(r.boards, id)
		}
		if !terminal && age > abandonAge {
			delete(r.boards, id)
		}
	}
}
