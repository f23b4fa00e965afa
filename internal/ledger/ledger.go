package ledger

import (
	"context"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/events"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ledger owns the stock and reserved counters of every product. Nothing else
// writes them.
type Ledger struct {
	products store.ProductRepository
	coord    *coordinator.Coordinator
	eventBus events.EventPublisher
	logger   *zap.Logger
	tracer   trace.Tracer
}

func New(products store.ProductRepository, coord *coordinator.Coordinator, eventBus events.EventPublisher, logger *zap.Logger) *Ledger {
	return &Ledger{
		products: products,
		coord:    coord,
		eventBus: eventBus,
		logger:   logger,
		tracer:   otel.Tracer("inventory-service/ledger"),
	}
}

// Reserve makes a single compare-and-swap attempt against expectedVersion.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, qty, expectedVersion int) (*domain.Product, error) {
	ctx, span := l.start(ctx, "ledger.reserve", productID, qty)
	defer span.End()

	var product *domain.Product
	err := l.coord.Run(ctx, "reserve", coordinator.NonIdempotent, func(ctx context.Context) error {
		var err error
		product, err = l.products.Update(ctx, productID, expectedVersion, func(p *domain.Product) error {
			return p.Reserve(qty)
		})
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	l.publish(ctx, events.StockReservedEvent{
		ProductID:   productID,
		Quantity:    qty,
		StockLevels: events.LevelsOf(product),
		OccurredAt:  product.UpdatedAt,
	})
	return product, nil
}

// ReserveLatest reads the product and reserves against the version it saw,
// retrying on conflict.
func (l *Ledger) ReserveLatest(ctx context.Context, productID uuid.UUID, qty int) (*domain.Product, error) {
	ctx, span := l.start(ctx, "ledger.reserve_latest", productID, qty)
	defer span.End()

	product, err := l.apply(ctx, "reserve_latest", productID, func(p *domain.Product) error {
		return p.Reserve(qty)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	l.publish(ctx, events.StockReservedEvent{
		ProductID:   productID,
		Quantity:    qty,
		StockLevels: events.LevelsOf(product),
		OccurredAt:  product.UpdatedAt,
	})
	return product, nil
}

// Release drops up to qty units of reservation and returns the amount
// actually released.
func (l *Ledger) Release(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	ctx, span := l.start(ctx, "ledger.release", productID, qty)
	defer span.End()

	var released int
	product, err := l.apply(ctx, "release", productID, func(p *domain.Product) error {
		var err error
		released, err = p.Release(qty)
		return err
	})
	if err != nil {
		return 0, fail(span, err)
	}
	span.SetAttributes(attribute.Int("released", released))

	l.publish(ctx, events.StockReleasedEvent{
		ProductID:   productID,
		Quantity:    released,
		StockLevels: events.LevelsOf(product),
		OccurredAt:  product.UpdatedAt,
	})
	return released, nil
}

// Commit turns a reservation into a stock reduction.
func (l *Ledger) Commit(ctx context.Context, productID uuid.UUID, qty int) (*domain.Product, error) {
	ctx, span := l.start(ctx, "ledger.commit", productID, qty)
	defer span.End()

	product, err := l.apply(ctx, "commit", productID, func(p *domain.Product) error {
		return p.Commit(qty)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	l.publish(ctx, events.StockCommittedEvent{
		ProductID:   productID,
		Quantity:    qty,
		StockLevels: events.LevelsOf(product),
		OccurredAt:  product.UpdatedAt,
	})
	return product, nil
}

// Adjust restocks (delta > 0) or writes off (delta < 0) units on hand.
func (l *Ledger) Adjust(ctx context.Context, productID uuid.UUID, delta int) (*domain.Product, error) {
	ctx, span := l.start(ctx, "ledger.adjust", productID, delta)
	defer span.End()

	product, err := l.apply(ctx, "adjust", productID, func(p *domain.Product) error {
		return p.Adjust(delta)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	l.publish(ctx, events.StockAdjustedEvent{
		ProductID:   productID,
		Delta:       delta,
		StockLevels: events.LevelsOf(product),
		OccurredAt:  product.UpdatedAt,
	})
	return product, nil
}

// Restore reverses a commit. Only reconciliation uses it.
func (l *Ledger) Restore(ctx context.Context, productID uuid.UUID, qty int) (*domain.Product, error) {
	ctx, span := l.start(ctx, "ledger.restore", productID, qty)
	defer span.End()

	product, err := l.apply(ctx, "restore", productID, func(p *domain.Product) error {
		return p.Restore(qty)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	l.publish(ctx, events.StockRestoredEvent{
		ProductID:   productID,
		Quantity:    qty,
		StockLevels: events.LevelsOf(product),
		OccurredAt:  product.UpdatedAt,
	})
	return product, nil
}

// apply re-reads the product on every attempt, so a retried mutation is
// applied to the latest version exactly once.
func (l *Ledger) apply(ctx context.Context, op string, productID uuid.UUID, mutate func(p *domain.Product) error) (*domain.Product, error) {
	var product *domain.Product
	err := l.coord.Run(ctx, op, coordinator.Idempotent, func(ctx context.Context) error {
		current, err := l.products.Get(ctx, productID)
		if err != nil {
			return err
		}
		product, err = l.products.Update(ctx, productID, current.Version, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (l *Ledger) start(ctx context.Context, name string, productID uuid.UUID, qty int) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("product.id", productID.String()),
		attribute.Int("quantity", qty),
	))
}

// publish never fails the ledger operation: the stock change is already
// durable when the event goes out.
func (l *Ledger) publish(ctx context.Context, event interface{}) {
	if err := l.eventBus.Publish(ctx, event); err != nil {
		l.logger.Error("Failed to publish event",
			zap.String("event-type", events.EventType(event)),
			zap.Error(err),
		)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
