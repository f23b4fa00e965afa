package handlers

import (
	"context"

	"inventory-service/internal/catalog"
	"inventory-service/internal/domain"
	"inventory-service/internal/orders"
	"inventory-service/internal/projection"
	"inventory-service/internal/reconcile"
	"inventory-service/internal/users"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// The interfaces below are what the handlers need from the services; the
// concrete types live in catalog, ledger, orders, users, projection and
// reconcile.

type CatalogService interface {
	CreateProduct(ctx context.Context, in catalog.ProductInput) (*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, expectedVersion int, in catalog.ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	DeleteProducts(ctx context.Context, ids []uuid.UUID) []catalog.DeleteResult
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*domain.Product, error)

	CreateCategory(ctx context.Context, name, description string) (*domain.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, expectedVersion int, name, description string) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateSupplier(ctx context.Context, in catalog.SupplierInput) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, id uuid.UUID, expectedVersion int, in catalog.SupplierInput) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id uuid.UUID) error
}

type LedgerService interface {
	Reserve(ctx context.Context, productID uuid.UUID, qty, expectedVersion int) (*domain.Product, error)
	Release(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	Commit(ctx context.Context, productID uuid.UUID, qty int) (*domain.Product, error)
}

type OrderService interface {
	PlaceOrder(ctx context.Context, principal domain.Principal, customerID uuid.UUID, items []orders.ItemRequest) (*domain.Order, error)
	CompleteOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error)
	CancelOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error)
	GetOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID) (*domain.Order, error)
}

type UserService interface {
	Create(ctx context.Context, principal domain.Principal, in users.RegisterInput, role domain.Role) (*domain.User, error)
	Get(ctx context.Context, principal domain.Principal, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, principal domain.Principal, id uuid.UUID, expectedVersion int, patch users.Patch) (*domain.User, error)
	Delete(ctx context.Context, principal domain.Principal, id uuid.UUID) (bool, error)
}

type Views interface {
	LowStock(ctx context.Context, threshold int) ([]*domain.Product, error)
	OutOfStock(ctx context.Context) ([]*domain.Product, error)
	EnrichedProducts(ctx context.Context, categoryID *uuid.UUID) ([]projection.EnrichedProduct, error)
	OrdersForCustomer(ctx context.Context, customerID uuid.UUID) ([]*domain.Order, error)
	OrdersByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error)
	AllOrders(ctx context.Context) ([]*domain.Order, error)
	SearchUsers(ctx context.Context, query string, role domain.Role) ([]*domain.User, error)
	SuppliersByName(ctx context.Context) ([]*domain.Supplier, error)
	SuppliersMap(ctx context.Context) (*projection.SupplierMap, error)
	Dashboard(ctx context.Context) (*projection.DashboardStats, error)
	AuditEntries(ctx context.Context, state domain.AuditState) ([]*domain.AuditEntry, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, auditID uuid.UUID) (*domain.AuditEntry, error)
	Sweep(ctx context.Context) (reconcile.SweepResult, error)
}

// pathID parses the :id path parameter. On failure it records a validation
// error and aborts.
func pathID(c *gin.Context, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		logger.Warn("Invalid id", zap.String("id", c.Param("id")))
		c.Error(apperrors.NewValidationError("invalid id", "id"))
		c.Abort()
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes the JSON body into req, recording a validation error on
// failure.
func bind(c *gin.Context, logger *zap.Logger, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Warn("Invalid request", zap.Error(err), zap.String("path", c.Request.URL.Path))
		c.Error(apperrors.NewInvalidRequest("invalid request", err.Error()))
		c.Abort()
		return false
	}
	return true
}

func fail(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}
