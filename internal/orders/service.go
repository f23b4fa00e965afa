package orders

import (
	"context"
	"fmt"
	"time"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/events"
	"inventory-service/internal/ledger"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ItemRequest is one requested line of a new order.
type ItemRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// Service drives orders through their lifecycle and keeps the ledger in step.
// It holds no locks: every step is a versioned read followed by a
// compare-and-swap.
type Service struct {
	store    store.Store
	ledger   *ledger.Ledger
	coord    *coordinator.Coordinator
	eventBus events.EventPublisher
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(s store.Store, l *ledger.Ledger, coord *coordinator.Coordinator, eventBus events.EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:    s,
		ledger:   l,
		coord:    coord,
		eventBus: eventBus,
		logger:   logger,
		tracer:   otel.Tracer("inventory-service/orders"),
		now:      time.Now,
	}
}

// PlaceOrder reserves every item in sequence and records a pending order.
// Either all items are reserved and the order exists, or nothing is held.
func (s *Service) PlaceOrder(ctx context.Context, principal domain.Principal, customerID uuid.UUID, items []ItemRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.place", trace.WithAttributes(
		attribute.String("customer.id", customerID.String()),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	order, err := s.placeOrder(ctx, principal, customerID, items)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, principal domain.Principal, customerID uuid.UUID, items []ItemRequest) (*domain.Order, error) {
	if !principal.CanActFor(customerID) {
		return nil, domain.NewForbidden("customers may only place orders for themselves")
	}
	if len(items) == 0 {
		return nil, domain.NewInvalidArgument("order must contain at least one item")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, domain.NewInvalidArgument("order item product is required")
		}
		if item.Quantity <= 0 {
			return nil, domain.NewInvalidArgument("order item quantity must be positive, got %d", item.Quantity)
		}
	}

	customer, err := s.store.Users().Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.Deleted {
		return nil, domain.NewNotFound("user", customerID)
	}

	orderID := uuid.New()
	reserved := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		product, err := s.ledger.ReserveLatest(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, s.rollback(ctx, orderID, reserved, err)
		}
		reserved = append(reserved, domain.OrderItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
		})
	}

	order, err := domain.NewOrder(orderID, customerID, reserved)
	if err != nil {
		return nil, s.rollback(ctx, orderID, reserved, err)
	}
	created, err := s.store.Orders().Create(ctx, order)
	if err != nil {
		return nil, s.rollback(ctx, orderID, reserved, err)
	}

	s.publish(ctx, events.OrderPlacedEvent{
		OrderID:    created.ID,
		CustomerID: created.CustomerID,
		Items:      created.Items,
		TotalCents: created.TotalCents(),
		OccurredAt: created.CreatedAt,
	})
	s.logger.Info("Order placed",
		zap.String("order_id", created.ID.String()),
		zap.String("customer_id", created.CustomerID.String()),
		zap.Int("items", len(created.Items)),
		zap.Int64("total_cents", created.TotalCents()),
	)
	return created, nil
}

// rollback releases the reservations of a failed placement and returns the
// error the caller should see.
func (s *Service) rollback(ctx context.Context, orderID uuid.UUID, reserved []domain.OrderItem, cause error) error {
	// Releases must run even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	for i, item := range reserved {
		if _, err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to roll back reservation",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", item.ProductID.String()),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
			return s.partialFailure(ctx, orderID, uuid.Nil, domain.LedgerRelease, domain.StatusCancelled, reserved[:i], reserved[i:], nil, err)
		}
	}
	return cause
}

// CompleteOrder commits every reservation of a pending order and marks it
// completed. Admins only.
func (s *Service) CompleteOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.complete", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	order, err := s.finish(ctx, orderID, expectedVersion, domain.StatusCompleted, domain.LedgerCommit, func(*domain.Order) error {
		if !principal.IsAdmin() {
			return domain.NewForbidden("only admins may complete orders")
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.publish(ctx, events.OrderCompletedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		TotalCents: order.TotalCents(),
		OccurredAt: order.UpdatedAt,
	})
	s.logger.Info("Order completed", zap.String("order_id", order.ID.String()), zap.Int64("total_cents", order.TotalCents()))
	return order, nil
}

// CancelOrder releases every reservation of a pending order and marks it
// cancelled. Admins may cancel any order, customers only their own.
func (s *Service) CancelOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.cancel", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	order, err := s.finish(ctx, orderID, expectedVersion, domain.StatusCancelled, domain.LedgerRelease, func(o *domain.Order) error {
		if !principal.CanActFor(o.CustomerID) {
			return domain.NewForbidden("customers may only cancel their own orders")
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.publish(ctx, events.OrderCancelledEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		OccurredAt: order.UpdatedAt,
	})
	s.logger.Info("Order cancelled", zap.String("order_id", order.ID.String()))
	return order, nil
}

// GetOrder returns an order its principal may see.
func (s *Service) GetOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !principal.CanActFor(order.CustomerID) {
		return nil, domain.NewForbidden("customers may only view their own orders")
	}
	return order, nil
}

func (s *Service) finish(ctx context.Context, orderID uuid.UUID, expectedVersion int, target domain.Status, op domain.LedgerOp, authorize func(*domain.Order) error) (*domain.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(order); err != nil {
		return nil, err
	}
	if order.Version != expectedVersion {
		return nil, domain.NewVersionConflict("order", orderID, expectedVersion, order.Version)
	}
	if order.Status != domain.StatusPending {
		return nil, domain.NewInvalidTransition(order.Status, target)
	}

	claim := uuid.New()
	claimed, err := s.claim(ctx, order, claim)
	if err != nil {
		return nil, err
	}

	var applied, shortfall []domain.OrderItem
	for i, item := range claimed.Items {
		moved, err := s.applyItem(ctx, op, item)
		if err != nil {
			if len(applied) == 0 && len(shortfall) == 0 {
				s.unclaim(ctx, claimed, claim)
				return nil, err
			}
			return nil, s.partialFailure(ctx, claimed.ID, claim, op, target, applied, claimed.Items[i:], shortfall, err)
		}
		if moved > 0 {
			applied = append(applied, withQuantity(item, moved))
		}
		if moved < item.Quantity {
			shortfall = append(shortfall, withQuantity(item, item.Quantity-moved))
		}
	}

	updated, err := s.transition(ctx, claimed, claim, target)
	if err != nil {
		return nil, s.partialFailure(ctx, claimed.ID, claim, op, target, applied, nil, shortfall, err)
	}
	if len(shortfall) > 0 {
		return nil, s.partialFailure(ctx, claimed.ID, claim, op, target, applied, nil, shortfall,
			domain.NewInsufficientStock(shortfall[0].ProductID, 0, shortfall[0].Quantity))
	}
	return updated, nil
}

// claim takes the exclusive right to apply ledger operations for order. A
// claim left by a caller that died is taken over once it is older than
// domain.ClaimTTL, unless an audit entry still holds it.
func (s *Service) claim(ctx context.Context, order *domain.Order, claim uuid.UUID) (*domain.Order, error) {
	if order.Claimed() {
		if !order.ClaimExpired(s.now(), domain.ClaimTTL) {
			return nil, domain.NewBusy("order", order.ID)
		}
		held, err := s.claimHeldByAudit(ctx, order)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, domain.NewBusy("order", order.ID)
		}
		s.logger.Warn("Taking over expired order claim",
			zap.String("order_id", order.ID.String()),
			zap.String("claim_id", order.ClaimID.String()),
		)
	}

	var claimed *domain.Order
	err := s.coord.Run(ctx, "order_claim", coordinator.NonIdempotent, func(ctx context.Context) error {
		var err error
		claimed, err = s.store.Orders().Update(ctx, order.ID, order.Version, func(o *domain.Order) error {
			o.ClaimID = claim
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Service) claimHeldByAudit(ctx context.Context, order *domain.Order) (bool, error) {
	entries, err := s.store.Audit().List(ctx, store.AuditFilter{OrderID: &order.ID})
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ClaimID == order.ClaimID && e.State != domain.AuditResolved {
			return true, nil
		}
	}
	return false, nil
}

// unclaim gives the order back when nothing was applied under the claim. A
// failure only delays the next caller until the claim expires.
func (s *Service) unclaim(ctx context.Context, claimed *domain.Order, claim uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	_, err := s.store.Orders().Update(ctx, claimed.ID, claimed.Version, func(o *domain.Order) error {
		if o.ClaimID != claim {
			return domain.NewBusy("order", o.ID)
		}
		o.ClaimID = uuid.Nil
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to release order claim",
			zap.String("order_id", claimed.ID.String()),
			zap.Error(err),
		)
	}
}

// applyItem runs op for one item and returns the quantity the ledger moved.
// A release moves less than requested when the reservation is already gone.
func (s *Service) applyItem(ctx context.Context, op domain.LedgerOp, item domain.OrderItem) (int, error) {
	switch op {
	case domain.LedgerCommit:
		if _, err := s.ledger.Commit(ctx, item.ProductID, item.Quantity); err != nil {
			return 0, err
		}
		return item.Quantity, nil
	case domain.LedgerRelease:
		return s.ledger.Release(ctx, item.ProductID, item.Quantity)
	default:
		return 0, domain.NewInvalidArgument("unknown ledger operation %q", op)
	}
}

func withQuantity(item domain.OrderItem, qty int) domain.OrderItem {
	item.Quantity = qty
	return item
}

// transition moves the claimed order to target. Re-running it is safe: each
// attempt re-reads, and a lost claim stops the retries.
func (s *Service) transition(ctx context.Context, claimed *domain.Order, claim uuid.UUID, target domain.Status) (*domain.Order, error) {
	var updated, superseded *domain.Order
	err := s.coord.Run(ctx, "order_"+string(target), coordinator.Idempotent, func(ctx context.Context) error {
		current, err := s.store.Orders().Get(ctx, claimed.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.StatusPending || current.ClaimID != claim {
			superseded = current
			return nil
		}
		updated, err = s.store.Orders().Update(ctx, current.ID, current.Version, func(o *domain.Order) error {
			return o.Transition(target)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if superseded != nil {
		return nil, domain.NewVersionConflict("order", claimed.ID, claimed.Version, superseded.Version)
	}
	return updated, nil
}

// partialFailure records what was and was not applied, announces it and
// returns the PartialCommitFailure. Applied operations are left in place for
// the reconciler. A shortfall means reservations vanished outside the order's
// control, which only an operator can explain, so its entry starts as manual.
func (s *Service) partialFailure(ctx context.Context, orderID, claim uuid.UUID, op domain.LedgerOp, target domain.Status, applied, remaining, shortfall []domain.OrderItem, cause error) error {
	ctx = context.WithoutCancel(ctx)
	auditID := uuid.Nil

	record := domain.NewAuditEntry(orderID, claim, op, target, applied, remaining, cause)
	record.Shortfall = append([]domain.OrderItem(nil), shortfall...)
	if len(shortfall) > 0 {
		record.State = domain.AuditManual
		record.Resolution = fmt.Sprintf("%d item(s) had less reservation than the order holds", len(shortfall))
	}

	entry, err := s.store.Audit().Create(ctx, record)
	if err != nil {
		s.logger.Error("Failed to record audit entry",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	} else {
		auditID = entry.ID
		// Manual entries wait for an operator, not for the listener.
		if entry.Open() {
			s.publish(ctx, events.NewPartialCommitFailureEvent(entry))
		}
	}

	s.logger.Error("Partial commit failure",
		zap.String("order_id", orderID.String()),
		zap.String("audit_id", auditID.String()),
		zap.String("operation", string(op)),
		zap.String("target_status", string(target)),
		zap.Int("applied", len(applied)),
		zap.Int("remaining", len(remaining)),
		zap.Int("shortfall", len(shortfall)),
		zap.Error(cause),
	)
	return domain.NewPartialCommitFailure(orderID, auditID, cause)
}

func (s *Service) publish(ctx context.Context, event interface{}) {
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
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
