package kafka

import "time"

// PoolUpdateEvent announces a jackpot pool value change to other nodes
type PoolUpdateEvent struct {
	Value     int64     `json:"value"`
	Delta     int64     `json:"delta"`
	UpdatedAt time.Time `json:"timestamp"`
}

// PlayEvent is the audit record published for every settled play
type PlayEvent struct {
	PlayID    string    `json:"play_id"`
	UserID    string    `json:"user_id"`
	Game      string    `json:"game"`
	Reason    string    `json:"reason"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
	Free      bool      `json:"free"`
	Timestamp time.Time `json:"timestamp"`
}
