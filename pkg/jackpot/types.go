package jackpot

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Update represents a pool value change published to listeners.
type Update struct {
	Value     int64     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the serialized backing for the shared pool counter. Both
// operations must be atomic: AddTax increments without lost updates,
// TryPayout reads and resets in one indivisible step so two concurrent
// winners can never both observe the pre-reset value.
type Store interface {
	// Value returns the current pool value.
	Value(ctx context.Context) (int64, error)

	// AddTax atomically increments the pool and returns the new value.
	AddTax(ctx context.Context, amount int64) (int64, error)

	// TryPayout atomically swaps the pool value for baseValue and
	// returns the pre-reset value.
	TryPayout(ctx context.Context) (int64, error)
}

// ServiceConfig configures the jackpot pool service.
type ServiceConfig struct {
	// Store backs the shared counter.
	Store Store

	// BroadcastInterval controls how often buffered updates are flushed
	// to listeners.
	BroadcastInterval time.Duration

	// Logger is optional; if zero value, a no-op logger is used.
	Logger zerolog.Logger
}
