package events

import (
	"context"
	"sync"
	"time"

	"inventory-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// Order lifecycle events
type OrderPlacedEvent struct {
	OrderID    uuid.UUID          `json:"order_id"`
	CustomerID uuid.UUID          `json:"customer_id"`
	Items      []domain.OrderItem `json:"items"`
	TotalCents int64              `json:"total_cents"`
	OccurredAt time.Time          `json:"occurred_at"`
}

type OrderCompletedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	TotalCents int64     `json:"total_cents"`
	OccurredAt time.Time `json:"occurred_at"`
}

type OrderCancelledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StockLevels is the product's stock after a ledger operation.
type StockLevels struct {
	Stock     int `json:"stock"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
}

func LevelsOf(p *domain.Product) StockLevels {
	return StockLevels{Stock: p.Stock, Reserved: p.Reserved, Available: p.Available()}
}

// Ledger events
type StockReservedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
	StockLevels
	OccurredAt time.Time `json:"occurred_at"`
}

type StockReleasedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
	StockLevels
	OccurredAt time.Time `json:"occurred_at"`
}

type StockCommittedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
	StockLevels
	OccurredAt time.Time `json:"occurred_at"`
}

type StockAdjustedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Delta      int       `json:"delta"`
	StockLevels
	OccurredAt time.Time `json:"occurred_at"`
}

type StockRestoredEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
	StockLevels
	OccurredAt time.Time `json:"occurred_at"`
}

// Catalog events
type ProductCreatedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ProductUpdatedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ProductDeletedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PartialCommitFailureEvent announces an audit entry that needs reconciling.
type PartialCommitFailureEvent struct {
	AuditID      uuid.UUID       `json:"audit_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	Operation    domain.LedgerOp `json:"operation"`
	TargetStatus domain.Status   `json:"target_status"`
	Applied      int             `json:"applied"`
	Remaining    int             `json:"remaining"`
	Cause        string          `json:"cause"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func NewPartialCommitFailureEvent(entry *domain.AuditEntry) PartialCommitFailureEvent {
	return PartialCommitFailureEvent{
		AuditID:      entry.ID,
		OrderID:      entry.OrderID,
		Operation:    entry.Operation,
		TargetStatus: entry.TargetStatus,
		Applied:      len(entry.Applied),
		Remaining:    len(entry.Remaining),
		Cause:        entry.Cause,
		OccurredAt:   time.Now().UTC(),
	}
}

// InMemoryEventPublisher records events in process. It backs tests and runs
// where Kafka is disabled.
type InMemoryEventPublisher struct {
	logger *zap.Logger
	mu     sync.Mutex
	events []interface{}
}

func NewEventPublisher(logger *zap.Logger) *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		logger: logger,
		events: make([]interface{}, 0),
	}
}

func (p *InMemoryEventPublisher) Publish(ctx context.Context, event interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	p.logger.Debug("Event published (in-memory)", zap.String("event-type", EventType(event)))
	return nil
}

// Events returns a copy of everything published so far.
func (p *InMemoryEventPublisher) Events() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.events...)
}

// EventType returns the event type as string
func EventType(event interface{}) string {
	switch event.(type) {
	case OrderPlacedEvent:
		return "OrderPlaced"
	case OrderCompletedEvent:
		return "OrderCompleted"
	case OrderCancelledEvent:
		return "OrderCancelled"
	case StockReservedEvent:
		return "StockReserved"
	case StockReleasedEvent:
		return "StockReleased"
	case StockCommittedEvent:
		return "StockCommitted"
	case StockAdjustedEvent:
		return "StockAdjusted"
	case StockRestoredEvent:
		return "StockRestored"
	case ProductCreatedEvent:
		return "ProductCreated"
	case ProductUpdatedEvent:
		return "ProductUpdated"
	case ProductDeletedEvent:
		return "ProductDeleted"
	case PartialCommitFailureEvent:
		return "PartialCommitFailure"
	default:
		return "Unknown"
	}
}

// PartitionKey returns the aggregate id the event is ordered by.
func PartitionKey(event interface{}) string {
	switch e := event.(type) {
	case OrderPlacedEvent:
		return e.OrderID.String()
	case OrderCompletedEvent:
		return e.OrderID.String()
	case OrderCancelledEvent:
		return e.OrderID.String()
	case StockReservedEvent:
		return e.ProductID.String()
	case StockReleasedEvent:
		return e.ProductID.String()
	case StockCommittedEvent:
		return e.ProductID.String()
	case StockAdjustedEvent:
		return e.ProductID.String()
	case StockRestoredEvent:
		return e.ProductID.String()
	case ProductCreatedEvent:
		return e.ProductID.String()
	case ProductUpdatedEvent:
		return e.ProductID.String()
	case ProductDeletedEvent:
		return e.ProductID.String()
	case PartialCommitFailureEvent:
		return e.OrderID.String()
	}
	return ""
}
