package quota

import "context"

// Store holds quota records keyed by (userID, game).
//
// Consume must be idempotent per playID: committing the same play twice
// counts one play. The day key is supplied by the tracker so every
// backend resets on the same canonical boundary.
type Store interface {
	// Get returns the record for (userID, game). A missing record is
	// returned as a zero-count Record, not an error.
	Get(ctx context.Context, userID string, game string) (*Record, error)

	// Consume increments the play count for day, resetting the count
	// first when the stored day differs. A playID that was already
	// consumed is a no-op.
	Consume(ctx context.Context, userID string, game string, day string, playID string) error
}
