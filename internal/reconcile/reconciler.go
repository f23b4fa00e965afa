package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/ledger"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultMaxAttempts = 5

// leaseTTL bounds how long a reconciler that stopped making progress keeps
// others off an entry.
const leaseTTL = time.Minute

// Reconciler resolves audit entries left behind by partial commits.
//
// A run first leases the entry, so across processes only one run applies
// ledger operations for it. Progress is written back to the entry after
// every ledger operation, so a run that dies halfway picks up where it
// stopped. Concurrent calls for the same entry within one process share a
// single run.
type Reconciler struct {
	store       store.Store
	ledger      *ledger.Ledger
	coord       *coordinator.Coordinator
	logger      *zap.Logger
	tracer      trace.Tracer
	maxAttempts int
	inflight    singleflight.Group
	now         func() time.Time
}

// SweepResult summarizes one pass over the open entries.
type SweepResult struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
	Manual   int `json:"manual"`
}

func New(s store.Store, l *ledger.Ledger, coord *coordinator.Coordinator, logger *zap.Logger, maxAttempts int) *Reconciler {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Reconciler{
		store:       s,
		ledger:      l,
		coord:       coord,
		logger:      logger,
		tracer:      otel.Tracer("inventory-service/reconcile"),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Reconcile drives one entry to a resolution. Resolved entries are returned
// unchanged. Manual entries are retried, which is how an operator forces
// another attempt.
func (r *Reconciler) Reconcile(ctx context.Context, auditID uuid.UUID) (*domain.AuditEntry, error) {
	v, err, _ := r.inflight.Do(auditID.String(), func() (interface{}, error) {
		entry, err := r.reconcile(ctx, auditID)
		if entry == nil {
			return nil, err
		}
		return entry, err
	})
	if v == nil {
		return nil, err
	}
	return v.(*domain.AuditEntry).Clone(), err
}

func (r *Reconciler) reconcile(ctx context.Context, auditID uuid.UUID) (*domain.AuditEntry, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.entry", trace.WithAttributes(attribute.String("audit.id", auditID.String())))
	defer span.End()

	entry, err := r.store.Audit().Get(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if entry.State == domain.AuditResolved {
		return entry, nil
	}
	entry, err = r.acquire(ctx, entry)
	if err != nil {
		return nil, err
	}

	order, err := r.store.Orders().Get(ctx, entry.OrderID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// The order was never stored: a placement whose rollback failed.
		entry, err = r.forward(ctx, entry)
		if err != nil {
			return r.recordFailure(ctx, entry, err)
		}
		return r.resolve(ctx, entry, "released reservations of an unplaced order")
	case err != nil:
		return r.recordFailure(ctx, entry, err)
	case order.Status == domain.StatusPending:
		return r.recover(ctx, entry, order)
	case order.ClaimID == entry.ClaimID:
		// The order was finalized under this entry's claim, so the applied
		// operations are the ones that finalized it.
		return r.resolve(ctx, entry, fmt.Sprintf("order already %s under the same claim", order.Status))
	default:
		return r.reverse(ctx, entry, order.Status)
	}
}

// acquire leases the entry to this run. Only the lease holder touches the
// ledger; a second reconciler, in this or another process, backs off.
func (r *Reconciler) acquire(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	if entry.Leased(r.now(), leaseTTL) {
		return nil, domain.NewBusy("audit entry", entry.ID)
	}
	lease := uuid.New()
	leased, err := r.store.Audit().Update(ctx, entry.ID, entry.Version, func(e *domain.AuditEntry) error {
		e.LeaseID = lease
		return nil
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return nil, domain.NewBusy("audit entry", entry.ID)
	}
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// recover finishes the interrupted transition: the remaining ledger
// operations first, then the order status. The order must still carry the
// entry's claim, or be free to take it.
func (r *Reconciler) recover(ctx context.Context, entry *domain.AuditEntry, order *domain.Order) (*domain.AuditEntry, error) {
	if order.ClaimID != entry.ClaimID {
		if order.Claimed() && !order.ClaimExpired(r.now(), domain.ClaimTTL) {
			return r.recordFailure(ctx, entry, domain.NewBusy("order", order.ID))
		}
		if _, err := r.store.Orders().Update(ctx, order.ID, order.Version, func(o *domain.Order) error {
			o.ClaimID = entry.ClaimID
			return nil
		}); err != nil {
			return r.recordFailure(ctx, entry, err)
		}
	}

	entry, err := r.forward(ctx, entry)
	if err != nil {
		return r.recordFailure(ctx, entry, err)
	}

	var superseded *domain.Order
	err = r.coord.Run(ctx, "reconcile_transition", coordinator.Idempotent, func(ctx context.Context) error {
		current, err := r.store.Orders().Get(ctx, entry.OrderID)
		if err != nil {
			return err
		}
		if current.Status != domain.StatusPending || current.ClaimID != entry.ClaimID {
			superseded = current
			return nil
		}
		_, err = r.store.Orders().Update(ctx, current.ID, current.Version, func(o *domain.Order) error {
			return o.Transition(entry.TargetStatus)
		})
		return err
	})
	if err != nil {
		return r.recordFailure(ctx, entry, err)
	}
	if superseded != nil {
		if superseded.Status == domain.StatusPending {
			return r.recordFailure(ctx, entry, domain.NewBusy("order", superseded.ID))
		}
		// Someone else finished the order while we were applying.
		return r.reverse(ctx, entry, superseded.Status)
	}
	return r.resolve(ctx, entry, fmt.Sprintf("completed transition to %s", entry.TargetStatus))
}

// forward applies the remaining operations one at a time, moving each to
// Applied with the quantity the ledger actually moved.
func (r *Reconciler) forward(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	for len(entry.Remaining) > 0 {
		item := entry.Remaining[0]
		moved, err := r.apply(ctx, entry.Operation, item)
		if err != nil {
			return entry, err
		}
		next, err := r.step(ctx, entry, func(e *domain.AuditEntry) {
			if moved > 0 {
				done := e.Remaining[0]
				done.Quantity = moved
				e.Applied = append(e.Applied, done)
			}
			if moved < item.Quantity {
				short := e.Remaining[0]
				short.Quantity = item.Quantity - moved
				e.Shortfall = append(e.Shortfall, short)
			}
			e.Remaining = e.Remaining[1:]
		})
		if err != nil {
			return entry, err
		}
		entry = next
	}
	return entry, nil
}

// reverse undoes the applied operations of an order that reached a terminal
// status under another claim. Applied quantities are what the ledger really
// moved, so nothing is undone that did not happen.
func (r *Reconciler) reverse(ctx context.Context, entry *domain.AuditEntry, status domain.Status) (*domain.AuditEntry, error) {
	reversed := 0
	for len(entry.Applied) > 0 {
		item := entry.Applied[len(entry.Applied)-1]
		if err := r.undo(ctx, entry.Operation, item); err != nil {
			return r.recordFailure(ctx, entry, err)
		}
		next, err := r.step(ctx, entry, func(e *domain.AuditEntry) {
			e.Applied = e.Applied[:len(e.Applied)-1]
		})
		if err != nil {
			return r.recordFailure(ctx, entry, err)
		}
		entry = next
		reversed++
	}
	return r.resolve(ctx, entry, fmt.Sprintf("order already %s, reversed %d operations", status, reversed))
}

func (r *Reconciler) apply(ctx context.Context, op domain.LedgerOp, item domain.OrderItem) (int, error) {
	switch op {
	case domain.LedgerCommit:
		if _, err := r.ledger.Commit(ctx, item.ProductID, item.Quantity); err != nil {
			return 0, err
		}
		return item.Quantity, nil
	case domain.LedgerRelease:
		return r.ledger.Release(ctx, item.ProductID, item.Quantity)
	}
	return 0, domain.NewInvalidArgument("unknown ledger operation %q", op)
}

func (r *Reconciler) undo(ctx context.Context, op domain.LedgerOp, item domain.OrderItem) error {
	switch op {
	case domain.LedgerCommit:
		_, err := r.ledger.Restore(ctx, item.ProductID, item.Quantity)
		return err
	case domain.LedgerRelease:
		_, err := r.ledger.ReserveLatest(ctx, item.ProductID, item.Quantity)
		return err
	}
	return domain.NewInvalidArgument("unknown ledger operation %q", op)
}

func (r *Reconciler) step(ctx context.Context, entry *domain.AuditEntry, mutate func(e *domain.AuditEntry)) (*domain.AuditEntry, error) {
	return r.store.Audit().Update(ctx, entry.ID, entry.Version, func(e *domain.AuditEntry) error {
		mutate(e)
		return nil
	})
}

func (r *Reconciler) resolve(ctx context.Context, entry *domain.AuditEntry, note string) (*domain.AuditEntry, error) {
	if len(entry.Shortfall) > 0 {
		note = fmt.Sprintf("%s; %d item(s) released short", note, len(entry.Shortfall))
	}
	resolved, err := r.step(ctx, entry, func(e *domain.AuditEntry) {
		e.State = domain.AuditResolved
		e.Resolution = note
		e.LeaseID = uuid.Nil
	})
	if err != nil {
		return entry, err
	}
	r.logger.Info("Audit entry resolved",
		zap.String("audit_id", entry.ID.String()),
		zap.String("order_id", entry.OrderID.String()),
		zap.String("resolution", note),
	)
	return resolved, nil
}

// recordFailure counts the attempt and hands the entry to an operator once
// attempts run out. The original error is always returned.
func (r *Reconciler) recordFailure(ctx context.Context, entry *domain.AuditEntry, cause error) (*domain.AuditEntry, error) {
	ctx = context.WithoutCancel(ctx)
	updated, err := r.step(ctx, entry, func(e *domain.AuditEntry) {
		e.Attempts++
		e.Resolution = cause.Error()
		e.LeaseID = uuid.Nil
		if e.Attempts >= r.maxAttempts {
			e.State = domain.AuditManual
		}
	})
	if err != nil {
		r.logger.Error("Failed to record reconcile attempt",
			zap.String("audit_id", entry.ID.String()),
			zap.Error(err),
		)
		return entry, cause
	}

	if updated.State == domain.AuditManual {
		r.logger.Error("Audit entry needs manual resolution",
			zap.String("audit_id", updated.ID.String()),
			zap.String("order_id", updated.OrderID.String()),
			zap.Int("attempts", updated.Attempts),
			zap.Error(cause),
		)
	} else {
		r.logger.Warn("Reconcile attempt failed",
			zap.String("audit_id", updated.ID.String()),
			zap.Int("attempts", updated.Attempts),
			zap.Error(cause),
		)
	}
	return updated, cause
}

// Sweep reconciles every open entry. Individual failures are counted, not
// returned.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	entries, err := r.store.Audit().List(ctx, store.AuditFilter{State: domain.AuditOpen})
	if err != nil {
		return result, fmt.Errorf("failed to list open audit entries: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		updated, err := r.Reconcile(ctx, entry.ID)
		switch {
		case err == nil:
			result.Resolved++
		case updated != nil && updated.State == domain.AuditManual:
			result.Manual++
		default:
			result.Failed++
		}
	}
	if len(entries) > 0 {
		r.logger.Info("Reconcile sweep finished",
			zap.Int("resolved", result.Resolved),
			zap.Int("failed", result.Failed),
			zap.Int("manual", result.Manual),
		)
	}
	return result, nil
}
