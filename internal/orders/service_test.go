package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/events"
	"inventory-service/internal/ledger"
	"inventory-service/internal/reconcile"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingOrders lets the order repository fail on demand while products and
// the rest of the store keep working. beforeUpdate runs ahead of every
// Update with its 1-based call number.
type failingOrders struct {
	store.OrderRepository
	createErr     error
	updateErr     error
	updateErrFrom int
	beforeUpdate  func(call int)
	updates       int
}

func (f *failingOrders) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.OrderRepository.Create(ctx, o)
}

func (f *failingOrders) Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch func(*domain.Order) error) (*domain.Order, error) {
	f.updates++
	call := f.updates
	if f.beforeUpdate != nil {
		f.beforeUpdate(call)
	}
	if f.updateErr != nil && call >= f.updateErrFrom {
		return nil, f.updateErr
	}
	return f.OrderRepository.Update(ctx, id, expectedVersion, patch)
}

type wrappedStore struct {
	*store.MemoryStore
	orders *failingOrders
}

func (w *wrappedStore) Orders() store.OrderRepository { return w.orders }

type fixture struct {
	mem      *store.MemoryStore
	store    store.Store
	coord    *coordinator.Coordinator
	orders   *failingOrders
	ledger   *ledger.Ledger
	service  *Service
	events   *events.InMemoryEventPublisher
	admin    domain.Principal
	customer *domain.User
}

func newFixture(t *testing.T) *fixture {
	mem := store.NewMemoryStore()
	wrapped := &wrappedStore{MemoryStore: mem, orders: &failingOrders{OrderRepository: mem.Orders()}}

	coord, err := coordinator.New(coordinator.Config{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		StoreTimeout: time.Second,
	}, zap.NewNop(), nil)
	require.NoError(t, err)

	publisher := events.NewEventPublisher(zap.NewNop())
	l := ledger.New(mem.Products(), coord, publisher, zap.NewNop())

	u, err := domain.NewUser("Ada", "ada@example.com", domain.RoleCustomer, "", "hash")
	require.NoError(t, err)
	customer, err := mem.Users().Create(context.Background(), u)
	require.NoError(t, err)

	return &fixture{
		mem:      mem,
		store:    wrapped,
		coord:    coord,
		orders:   wrapped.orders,
		ledger:   l,
		service:  NewService(wrapped, l, coord, publisher, zap.NewNop()),
		events:   publisher,
		admin:    domain.Principal{UserID: uuid.New(), Role: domain.RoleAdmin},
		customer: customer,
	}
}

func (f *fixture) self() domain.Principal {
	return domain.Principal{UserID: f.customer.ID, Role: domain.RoleCustomer}
}

func (f *fixture) product(t *testing.T, stock int, priceCents int64) *domain.Product {
	p, err := domain.NewProduct("Widget", "", priceCents, stock, nil, nil)
	require.NoError(t, err)
	created, err := f.mem.Products().Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) (int, int) {
	p, err := f.mem.Products().Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock, p.Reserved
}

func (f *fixture) openAudit(t *testing.T) []*domain.AuditEntry {
	entries, err := f.mem.Audit().List(context.Background(), store.AuditFilter{State: domain.AuditOpen})
	require.NoError(t, err)
	return entries
}

func countEvents[T any](published []interface{}) int {
	n := 0
	for _, e := range published {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

func TestOrderLifecycle_NoOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5, 1000)

	first, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, first.Status)
	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 5, reserved)

	_, err = f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	completed, err := f.service.CompleteOrder(ctx, f.admin, first.ID, first.Version)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	stock, reserved = f.stock(t, p.ID)
	assert.Equal(t, 0, stock)
	assert.Equal(t, 0, reserved)

	assert.Equal(t, 1, countEvents[events.OrderPlacedEvent](f.events.Events()))
	assert.Equal(t, 1, countEvents[events.OrderCompletedEvent](f.events.Events()))
}

func TestCancelOrder_ReleasesReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5, 1000)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)

	cancelled, err := f.service.CancelOrder(ctx, f.self(), order.ID, order.Version)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 0, reserved)

	_, err = f.service.CompleteOrder(ctx, f.admin, order.ID, cancelled.Version)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPlaceOrder_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plenty := f.product(t, 5, 100)
	scarce := f.product(t, 1, 100)

	_, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{
		{ProductID: plenty.ID, Quantity: 2},
		{ProductID: scarce.ID, Quantity: 3},
	})

	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, scarce.ID, de.EntityID)

	_, reserved := f.stock(t, plenty.ID)
	assert.Equal(t, 0, reserved)
	_, reserved = f.stock(t, scarce.ID)
	assert.Equal(t, 0, reserved)

	all, err := f.mem.Orders().List(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 1, countEvents[events.StockReleasedEvent](f.events.Events()))
}

func TestPlaceOrder_RollsBackWhenOrderCannotBeStored(t *testing.T) {
	f := newFixture(t)
	f.orders.createErr = errors.New("disk full")
	p := f.product(t, 5, 100)

	_, err := f.service.PlaceOrder(context.Background(), f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 2}})

	assert.EqualError(t, err, "disk full")
	_, reserved := f.stock(t, p.ID)
	assert.Equal(t, 0, reserved)
}

func TestPlaceOrder_SnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 1250)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	current, err := f.mem.Products().Get(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.mem.Products().Update(ctx, p.ID, current.Version, func(p *domain.Product) error {
		p.PriceCents = 9999
		return nil
	})
	require.NoError(t, err)

	stored, err := f.service.GetOrder(ctx, f.self(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), stored.Items[0].UnitPriceCents)
	assert.Equal(t, int64(2500), stored.TotalCents())
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	tests := []struct {
		name       string
		principal  domain.Principal
		customerID uuid.UUID
		items      []ItemRequest
		want       error
	}{
		{"no items", f.self(), f.customer.ID, nil, domain.ErrInvalidArgument},
		{"zero quantity", f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 0}}, domain.ErrInvalidArgument},
		{"missing product", f.self(), f.customer.ID, []ItemRequest{{Quantity: 1}}, domain.ErrInvalidArgument},
		{"someone else's order", domain.Principal{UserID: uuid.New(), Role: domain.RoleCustomer}, f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}}, domain.ErrForbidden},
		{"unknown customer", f.admin, uuid.New(), []ItemRequest{{ProductID: p.ID, Quantity: 1}}, domain.ErrNotFound},
		{"unknown product", f.self(), f.customer.ID, []ItemRequest{{ProductID: uuid.New(), Quantity: 1}}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.PlaceOrder(ctx, tt.principal, tt.customerID, tt.items)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, reserved := f.stock(t, p.ID)
	assert.Equal(t, 0, reserved)
}

func TestPlaceOrder_AdminForCustomer(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(context.Background(), f.admin, f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}})

	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, order.CustomerID)
}

func TestFinishOrder_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)
	stranger := domain.Principal{UserID: uuid.New(), Role: domain.RoleCustomer}

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.service.CompleteOrder(ctx, f.self(), order.ID, order.Version)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.service.CancelOrder(ctx, stranger, order.ID, order.Version)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.service.GetOrder(ctx, stranger, order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, reserved := f.stock(t, p.ID)
	assert.Equal(t, 1, reserved)
}

func TestCompleteOrder_StaleVersionLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	_, err = f.service.CompleteOrder(ctx, f.admin, order.ID, order.Version+1)

	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 2, reserved)
}

func TestCompleteOrder_PartialCommitFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.product(t, 10, 100)
	second := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{
		{ProductID: first.ID, Quantity: 2},
		{ProductID: second.ID, Quantity: 2},
	})
	require.NoError(t, err)

	// Another actor drops the second reservation behind the order's back.
	_, err = f.ledger.Release(ctx, second.ID, 2)
	require.NoError(t, err)

	_, err = f.service.CompleteOrder(ctx, f.admin, order.ID, order.Version)

	require.ErrorIs(t, err, domain.ErrPartialCommitFailure)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.KindPartialCommitFailure, domain.KindOf(err))

	stock, reserved := f.stock(t, first.ID)
	assert.Equal(t, 8, stock)
	assert.Equal(t, 0, reserved)

	entries := f.openAudit(t)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, order.ID, entry.OrderID)
	assert.Equal(t, domain.LedgerCommit, entry.Operation)
	assert.Equal(t, domain.StatusCompleted, entry.TargetStatus)
	require.Len(t, entry.Applied, 1)
	assert.Equal(t, first.ID, entry.Applied[0].ProductID)
	require.Len(t, entry.Remaining, 1)
	assert.Equal(t, second.ID, entry.Remaining[0].ProductID)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, entry.ID, de.EntityID)

	stored, err := f.mem.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 1, countEvents[events.PartialCommitFailureEvent](f.events.Events()))
}

func TestCompleteOrder_StatusWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 4}})
	require.NoError(t, err)

	// The claim (first update) goes through, the status write does not.
	f.orders.updateErr = domain.NewVersionConflict("order", order.ID, order.Version, order.Version+1)
	f.orders.updateErrFrom = 2
	_, err = f.service.CompleteOrder(ctx, f.admin, order.ID, order.Version)

	require.ErrorIs(t, err, domain.ErrPartialCommitFailure)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 6, stock)
	assert.Equal(t, 0, reserved)

	entries := f.openAudit(t)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Applied, 1)
	assert.Empty(t, entries[0].Remaining)
}

func TestTransition_RequiresClaim(t *testing.T) {
	// Setup
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	claim := uuid.New()
	claimed, err := f.service.claim(ctx, order, claim)
	require.NoError(t, err)

	// Execute
	_, lostErr := f.service.transition(ctx, claimed, uuid.New(), domain.StatusCancelled)
	completed, err := f.service.transition(ctx, claimed, claim, domain.StatusCompleted)

	// Assert
	assert.ErrorIs(t, lostErr, domain.ErrVersionConflict)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Equal(t, claim, completed.ClaimID)
}

func TestCompleteOrder_ConcurrentCancelCannotTouchLedger(t *testing.T) {
	// Setup
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	// The cancel runs after the completion has claimed the order and
	// committed its stock, right before the completion's status write.
	var staleErr, currentErr error
	f.orders.beforeUpdate = func(call int) {
		if call != 2 {
			return
		}
		_, staleErr = f.service.CancelOrder(ctx, f.admin, order.ID, order.Version)
		current, err := f.mem.Orders().Get(ctx, order.ID)
		require.NoError(t, err)
		_, currentErr = f.service.CancelOrder(ctx, f.admin, order.ID, current.Version)
	}

	// Execute
	completed, err := f.service.CompleteOrder(ctx, f.admin, order.ID, order.Version)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.ErrorIs(t, staleErr, domain.ErrVersionConflict)
	assert.ErrorIs(t, currentErr, domain.ErrVersionConflict)

	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 8, stock)
	assert.Equal(t, 0, reserved)
	assert.Empty(t, f.openAudit(t))

	// Nothing is left for the reconciler, so the ledger stays as it is.
	result, err := reconcile.New(f.store, f.ledger, f.coord, zap.NewNop(), 5).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.SweepResult{}, result)
	stock, reserved = f.stock(t, p.ID)
	assert.Equal(t, 8, stock)
	assert.Equal(t, 0, reserved)
}

func TestCancelOrder_ShortReleaseIsAudited(t *testing.T) {
	// Setup
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	// Someone drops part of the reservation through the ledger directly.
	_, err = f.ledger.Release(ctx, p.ID, 2)
	require.NoError(t, err)

	// Execute
	_, err = f.service.CancelOrder(ctx, f.self(), order.ID, order.Version)

	// Assert
	require.ErrorIs(t, err, domain.ErrPartialCommitFailure)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	stored, err := f.mem.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)

	entries, err := f.mem.Audit().List(ctx, store.AuditFilter{OrderID: &order.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, domain.AuditManual, entry.State)
	assert.Equal(t, stored.ClaimID, entry.ClaimID)
	require.Len(t, entry.Applied, 1)
	assert.Equal(t, 1, entry.Applied[0].Quantity)
	require.Len(t, entry.Shortfall, 1)
	assert.Equal(t, 2, entry.Shortfall[0].Quantity)
	assert.Zero(t, countEvents[events.PartialCommitFailureEvent](f.events.Events()))

	// Acknowledging the entry resolves it without moving stock.
	resolved, err := reconcile.New(f.store, f.ledger, f.coord, zap.NewNop(), 5).Reconcile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditResolved, resolved.State)
	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, reserved)
}

func TestFinishOrder_ExpiredClaim(t *testing.T) {
	// Setup
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	// A finisher claimed the order and died.
	abandoned, err := f.mem.Orders().Update(ctx, order.ID, order.Version, func(o *domain.Order) error {
		o.ClaimID = uuid.New()
		return nil
	})
	require.NoError(t, err)

	// Execute
	_, busyErr := f.service.CancelOrder(ctx, f.self(), order.ID, abandoned.Version)
	f.service.now = func() time.Time { return time.Now().Add(domain.ClaimTTL + time.Second) }
	cancelled, err := f.service.CancelOrder(ctx, f.self(), order.ID, abandoned.Version)

	// Assert
	assert.ErrorIs(t, busyErr, domain.ErrVersionConflict)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	_, reserved := f.stock(t, p.ID)
	assert.Equal(t, 0, reserved)
}

func TestFinishOrder_ClaimHeldByAuditNeverExpires(t *testing.T) {
	// Setup
	f := newFixture(t)
	ctx := context.Background()
	first := f.product(t, 10, 100)
	second := f.product(t, 10, 100)

	order, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{
		{ProductID: first.ID, Quantity: 1},
		{ProductID: second.ID, Quantity: 1},
	})
	require.NoError(t, err)
	_, err = f.ledger.Release(ctx, second.ID, 1)
	require.NoError(t, err)
	_, err = f.service.CompleteOrder(ctx, f.admin, order.ID, order.Version)
	require.ErrorIs(t, err, domain.ErrPartialCommitFailure)

	stored, err := f.mem.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, stored.Claimed())
	f.service.now = func() time.Time { return time.Now().Add(domain.ClaimTTL + time.Second) }

	// Execute
	_, err = f.service.CancelOrder(ctx, f.self(), order.ID, stored.Version)

	// Assert
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	stock, reserved := f.stock(t, first.ID)
	assert.Equal(t, 9, stock)
	assert.Equal(t, 0, reserved)
}

func TestPlaceOrder_ConcurrentBuyersNeverOversell(t *testing.T) {
	// Setup
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 1, 100)

	const buyers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var placed, insufficient int

	// Execute
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.PlaceOrder(ctx, f.self(), f.customer.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
				insufficient++
			}
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 1, placed)
	assert.Equal(t, buyers-1, insufficient)
	stock, reserved := f.stock(t, p.ID)
	assert.Equal(t, 1, stock)
	assert.Equal(t, 1, reserved)

	all, err := f.mem.Orders().List(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
