package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/events/kafka"
)

const (
	defaultPlayTopic = "loyalty.plays"
	defaultPoolTopic = "loyalty.pool-updates"
)

// AuditProvider publishes settled plays and pool changes to Kafka. With
// no producer configured it degrades to logging, so single-node
// deployments run without a broker.
type AuditProvider struct {
	producer  *kafka.Producer
	playTopic string
	poolTopic string
	logger    zerolog.Logger
}

// NewAuditProvider creates a new audit provider
func NewAuditProvider(cfg *config.Config, producer *kafka.Producer, logger zerolog.Logger) *AuditProvider {
	playTopic := cfg.Kafka.Topics["plays"]
	if playTopic == "" {
		playTopic = defaultPlayTopic
	}
	poolTopic := cfg.Kafka.Topics["pool_updates"]
	if poolTopic == "" {
		poolTopic = defaultPoolTopic
	}
	return &AuditProvider{
		producer:  producer,
		playTopic: playTopic,
		poolTopic: poolTopic,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// RecordPlay publishes one play event. details may be a kafka.PlayEvent
// or any loosely typed map carrying the same fields.
func (p *AuditProvider) RecordPlay(ctx context.Context, details interface{}) error {
	var event kafka.PlayEvent
	if typed, ok := details.(kafka.PlayEvent); ok {
		event = typed
	} else if err := mapstructure.Decode(details, &event); err != nil {
		return fmt.Errorf("failed to decode play details: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if p.producer == nil {
		p.logger.Debug().
			Str("play_id", event.PlayID).
			Str("user_id", event.UserID).
			Str("reason", event.Reason).
			Int64("amount", event.Amount).
			Msg("play settled")
		return nil
	}
	return p.producer.SendPlayEvent(p.playTopic, event)
}

// PublishPoolUpdate announces a pool value change to other nodes
func (p *AuditProvider) PublishPoolUpdate(ctx context.Context, event kafka.PoolUpdateEvent) error {
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = time.Now().UTC()
	}
	if p.producer == nil {
		return nil
	}
	return p.producer.SendPoolUpdate(p.poolTopic, event)
}
