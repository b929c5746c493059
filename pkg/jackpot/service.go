package jackpot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBroadcastInterval is the default interval for broadcasting
// buffered pool updates
const DefaultBroadcastInterval = 2 * time.Second

// Service fronts the shared pool. Mutations go straight to the Store's
// atomic primitives; the service's own job is fan-out: it buffers the
// latest value and broadcasts it to stream listeners on an interval.
// It is transport-agnostic: the caller wires HTTP routes and subscribes
// via Listen().
type Service struct {
	store Store

	mu      sync.Mutex
	pending *Update

	broad    *Broadcaster
	logger   zerolog.Logger
	interval time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService creates a jackpot pool service and starts its flush loop.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.BroadcastInterval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	s := &Service{
		store:    cfg.Store,
		broad:    NewBroadcaster(128),
		logger:   cfg.Logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
	s.start()
	return s
}

// Value returns the current pool value.
func (s *Service) Value(ctx context.Context) (int64, error) {
	return s.store.Value(ctx)
}

// AddTax adds a tax contribution to the pool and buffers the new value
// for broadcast.
func (s *Service) AddTax(ctx context.Context, amount int64) error {
	value, err := s.store.AddTax(ctx, amount)
	if err != nil {
		return err
	}
	s.buffer(Update{Value: value, Timestamp: time.Now()})
	return nil
}

// TryPayout resolves a jackpot-trigger draw. When winnerDraw is false it
// returns (0, false, nil) and leaves the pool untouched. When true it
// atomically reads and resets the pool, returning the pre-reset value;
// a second concurrent winner observes the already-reset pool.
func (s *Service) TryPayout(ctx context.Context, winnerDraw bool) (int64, bool, error) {
	if !winnerDraw {
		return 0, false, nil
	}
	payout, err := s.store.TryPayout(ctx)
	if err != nil {
		return 0, false, err
	}
	s.logger.Info().Int64("payout", payout).Msg("jackpot paid out")

	value, err := s.store.Value(ctx)
	if err == nil {
		s.buffer(Update{Value: value, Timestamp: time.Now()})
	}
	return payout, true, nil
}

// HandlePoolUpdate buffers an externally observed pool value, e.g. one
// consumed from the Kafka pool-updates topic on another node.
func (s *Service) HandlePoolUpdate(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	s.buffer(update)
}

// Listen returns a channel of flushed updates plus a cancel function.
func (s *Service) Listen(ctx context.Context) (<-chan Update, context.CancelFunc) {
	return s.broad.Listen(ctx)
}

// Stop stops the flush loop.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopChan)
	})
}

func (s *Service) start() {
	s.ticker = time.NewTicker(s.interval)
	go s.loop()
}

func (s *Service) loop() {
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.ticker.C:
			s.flush()
		}
	}
}

// buffer keeps only the newest pending value between flushes
func (s *Service) buffer(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && update.Timestamp.Before(s.pending.Timestamp) {
		return
	}
	s.pending = &update
}

func (s *Service) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending == nil {
		return
	}
	s.broad.Send(*pending)
	if s.logger.GetLevel() <= zerolog.DebugLevel {
		s.logger.Debug().Int64("value", pending.Value).Msg("flushed jackpot update")
	}
}
