package game

import (
	"github.com/remibonds525-star/loyalty-engine/pkg/rng"
)

// DailyOutcome is the result of one daily spin
type DailyOutcome struct {
	Segment int   `json:"segment"`
	Prize   int64 `json:"prize"`
}

// DailyEngine resolves the once-a-day bonus wheel. Every segment is
// equally likely.
type DailyEngine struct {
	prizes []int64
	rand   rng.Source
}

// NewDailyEngine creates a daily wheel engine
func NewDailyEngine(prizes []int64, src rng.Source) *DailyEngine {
	return &DailyEngine{prizes: prizes, rand: src}
}

// Spin draws one wheel segment
func (e *DailyEngine) Spin() *DailyOutcome {
	segment := e.rand.Intn(len(e.prizes))
	return &DailyOutcome{Segment: segment, Prize: e.prizes[segment]}
}
