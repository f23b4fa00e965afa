package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/config"
	"inventory-service/internal/domain"
	"inventory-service/internal/events"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventTypeHeader = "event-type"

// Reconciler is what the consumer drives for every partial commit failure.
type Reconciler interface {
	Reconcile(ctx context.Context, auditID uuid.UUID) (*domain.AuditEntry, error)
}

// Consumer reads the audit topic and reconciles each announced entry.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	handler       *consumerGroupHandler
	logger        *zap.Logger
	topics        []string
	groupID       string
}

// ConsumerConfig builds the consumer group configuration.
func ConsumerConfig(cfg *config.Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.KafkaClientID
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Version = sarama.V2_8_0_0

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	saramaConfig.Metadata.RefreshFrequency = 10 * time.Minute
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	return saramaConfig
}

// NewConsumer creates a consumer group on the audit topic.
func NewConsumer(cfg *config.Config, reconciler Reconciler, logger *zap.Logger) (*Consumer, error) {
	logger.Info("🔌 Creating Kafka consumer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group_id", cfg.KafkaGroupID),
	)

	consumerGroup, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, ConsumerConfig(cfg))
	if err != nil {
		logger.Error("❌ Failed to create Kafka consumer group",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("✅ Kafka consumer group created successfully",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group_id", cfg.KafkaGroupID),
	)

	return &Consumer{
		consumerGroup: consumerGroup,
		handler:       newConsumerGroupHandler(reconciler, logger, cfg.MaxRetries, cfg.RetryBackoff),
		logger:        logger,
		topics:        []string{cfg.KafkaTopicAudit},
		groupID:       cfg.KafkaGroupID,
	}, nil
}

// Start consumes until ctx is cancelled or the group fails.
func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Error("Consumer error", zap.Error(err))
		}
	}()

	c.logger.Info("Kafka consumer started",
		zap.Strings("topics", c.topics),
		zap.String("group_id", c.groupID),
	)

	for {
		// Consume returns on every rebalance; loop to rejoin the group.
		if err := c.consumerGroup.Consume(ctx, c.topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("Error from consumer",
				zap.Error(err),
				zap.String("error_type", fmt.Sprintf("%T", err)),
			)
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close closes the consumer group
func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}

type consumerGroupHandler struct {
	reconciler Reconciler
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func newConsumerGroupHandler(reconciler Reconciler, logger *zap.Logger, maxRetries int, backoff time.Duration) *consumerGroupHandler {
	return &consumerGroupHandler{
		reconciler: reconciler,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim reconciles each message in turn. Messages are marked even when
// reconciliation fails: the entry stays open in the store and the periodic
// sweep picks it up.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				h.logger.Error("Failed to reconcile audit entry",
					zap.String("topic", message.Topic),
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage decodes a PartialCommitFailure event and reconciles its
// entry. Other event types are ignored.
func (h *consumerGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	eventType := extractEventType(message.Headers)
	if eventType != events.EventType(events.PartialCommitFailureEvent{}) {
		h.logger.Debug("Skipping event",
			zap.String("event_type", eventType),
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
		)
		return nil
	}

	var event events.PartialCommitFailureEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("decode %s event: %w", eventType, err)
	}
	if event.AuditID == uuid.Nil {
		return fmt.Errorf("%s event without audit_id", eventType)
	}

	return h.reconcileWithRetry(ctx, event.AuditID)
}

// reconcileWithRetry retries version conflicts only; any other error is final
// for this message.
func (h *consumerGroupHandler) reconcileWithRetry(ctx context.Context, auditID uuid.UUID) error {
	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			delay := h.backoff * time.Duration(attempt)
			h.logger.Info("Retrying reconciliation",
				zap.String("audit_id", auditID.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		entry, err := h.reconciler.Reconcile(ctx, auditID)
		if err == nil {
			h.logger.Info("Audit entry reconciled",
				zap.String("audit_id", auditID.String()),
				zap.String("state", string(entry.State)),
				zap.Int("attempts", entry.Attempts),
			)
			return nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		h.logger.Warn("Version conflict while reconciling, will retry",
			zap.String("audit_id", auditID.String()),
			zap.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("failed after %d attempts: %w", h.maxRetries+1, lastErr)
}

func extractEventType(headers []*sarama.RecordHeader) string {
	for _, header := range headers {
		if header != nil && string(header.Key) == eventTypeHeader {
			return string(header.Value)
		}
	}
	return ""
}
