package catalog

import (
	"context"
	"testing"
	"time"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/events"
	"inventory-service/internal/ledger"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *events.InMemoryEventPublisher) {
	s := store.NewMemoryStore()
	coord, err := coordinator.New(coordinator.Config{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		StoreTimeout: time.Second,
	}, zap.NewNop(), nil)
	require.NoError(t, err)
	bus := events.NewEventPublisher(zap.NewNop())
	l := ledger.New(s.Products(), coord, bus, zap.NewNop())
	return NewService(s, l, coord, bus, zap.NewNop()), s, bus
}

func TestCreateProduct(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Tools", "hand tools")
	require.NoError(t, err)
	sup, err := svc.CreateSupplier(ctx, SupplierInput{Name: "Acme", Location: &domain.GeoPoint{Lat: 1, Lng: 2}})
	require.NoError(t, err)

	p, err := svc.CreateProduct(ctx, ProductInput{
		Name:       "Hammer",
		PriceCents: 1299,
		Stock:      10,
		CategoryID: &cat.ID,
		SupplierID: &sup.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, 10, p.Stock)

	recorded := bus.Events()
	require.Len(t, recorded, 1)
	created, ok := recorded[0].(events.ProductCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, p.ID, created.ProductID)
}

func TestCreateProduct_Rejections(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()
	missing := uuid.New()

	tests := []struct {
		name string
		in   ProductInput
		want error
	}{
		{"empty name", ProductInput{Name: "", PriceCents: 100}, domain.ErrInvalidArgument},
		{"negative price", ProductInput{Name: "x", PriceCents: -1}, domain.ErrInvalidArgument},
		{"negative stock", ProductInput{Name: "x", Stock: -1}, domain.ErrInvalidArgument},
		{"unknown category", ProductInput{Name: "x", CategoryID: &missing}, domain.ErrNotFound},
		{"unknown supplier", ProductInput{Name: "x", SupplierID: &missing}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, bus.Events())
}

func TestUpdateProduct(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Hammer", PriceCents: 1000, Stock: 4})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, p.ID, p.Version, ProductInput{Name: "Claw hammer", PriceCents: 1500, Stock: 99})
	require.NoError(t, err)
	assert.Equal(t, "Claw hammer", updated.Name)
	assert.Equal(t, int64(1500), updated.PriceCents)
	assert.Equal(t, 4, updated.Stock, "stock is not editable through update")
	assert.Equal(t, 2, updated.Version)

	_, err = svc.UpdateProduct(ctx, p.ID, p.Version, ProductInput{Name: "Stale"})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	current, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Claw hammer", current.Name)
}

func TestAdjustStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Hammer", Stock: 4})
	require.NoError(t, err)

	adjusted, err := svc.AdjustStock(ctx, p.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 10, adjusted.Stock)

	_, err = svc.AdjustStock(ctx, p.ID, -11)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestDeleteProducts(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()
	a, err := svc.CreateProduct(ctx, ProductInput{Name: "a"})
	require.NoError(t, err)
	b, err := svc.CreateProduct(ctx, ProductInput{Name: "b"})
	require.NoError(t, err)
	missing := uuid.New()

	results := svc.DeleteProducts(ctx, []uuid.UUID{a.ID, missing, b.ID})
	require.Len(t, results, 3)
	assert.True(t, results[0].Deleted)
	assert.False(t, results[1].Deleted)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Deleted)

	_, err = svc.GetProduct(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted := 0
	for _, e := range bus.Events() {
		if _, ok := e.(events.ProductDeletedEvent); ok {
			deleted++
		}
	}
	assert.Equal(t, 2, deleted)
}

func TestCategoryLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	zeta, err := svc.CreateCategory(ctx, "Zeta", "")
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, "Alpha", "")
	require.NoError(t, err)

	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)

	renamed, err := svc.UpdateCategory(ctx, zeta.ID, zeta.Version, "Omega", "last")
	require.NoError(t, err)
	assert.Equal(t, "Omega", renamed.Name)

	_, err = svc.UpdateCategory(ctx, zeta.ID, renamed.Version, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	p, err := svc.CreateProduct(ctx, ProductInput{Name: "x", CategoryID: &zeta.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, zeta.ID), domain.ErrReferentialConflict)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	require.NoError(t, svc.DeleteCategory(ctx, zeta.ID))
	_, err = svc.GetCategory(ctx, zeta.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSupplierLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sp, err := svc.CreateSupplier(ctx, SupplierInput{Name: "Acme", Email: "sales@acme.example"})
	require.NoError(t, err)

	_, err = svc.CreateSupplier(ctx, SupplierInput{Name: "Lost", Location: &domain.GeoPoint{Lat: 91}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	updated, err := svc.UpdateSupplier(ctx, sp.ID, sp.Version, SupplierInput{
		Name:     "Acme Corp",
		Location: &domain.GeoPoint{Lat: 40.7, Lng: -74},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Name)
	require.NotNil(t, updated.Location)

	fetched, err := svc.GetSupplier(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Version, fetched.Version)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "x", SupplierID: &sp.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteSupplier(ctx, sp.ID), domain.ErrReferentialConflict)
}
