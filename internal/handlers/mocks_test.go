package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"

	"inventory-service/internal/catalog"
	"inventory-service/internal/domain"
	"inventory-service/internal/orders"
	"inventory-service/internal/projection"
	"inventory-service/internal/reconcile"
	"inventory-service/internal/users"
	apperrors "inventory-service/pkg/errors"
	"inventory-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateProduct(ctx context.Context, in catalog.ProductInput) (*domain.Product, error) {
	args := m.Called(ctx, in)
	return product(args.Get(0)), args.Error(1)
}

func (m *MockCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	args := m.Called(ctx, id)
	return product(args.Get(0)), args.Error(1)
}

func (m *MockCatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, expectedVersion int, in catalog.ProductInput) (*domain.Product, error) {
	args := m.Called(ctx, id, expectedVersion, in)
	return product(args.Get(0)), args.Error(1)
}

func (m *MockCatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) DeleteProducts(ctx context.Context, ids []uuid.UUID) []catalog.DeleteResult {
	return m.Called(ctx, ids).Get(0).([]catalog.DeleteResult)
}

func (m *MockCatalogService) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*domain.Product, error) {
	args := m.Called(ctx, id, delta)
	return product(args.Get(0)), args.Error(1)
}

func (m *MockCatalogService) CreateCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	args := m.Called(ctx, name, description)
	c, _ := args.Get(0).(*domain.Category)
	return c, args.Error(1)
}

func (m *MockCatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*domain.Category)
	return c, args.Error(1)
}

func (m *MockCatalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).([]*domain.Category)
	return c, args.Error(1)
}

func (m *MockCatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, expectedVersion int, name, description string) (*domain.Category, error) {
	args := m.Called(ctx, id, expectedVersion, name, description)
	c, _ := args.Get(0).(*domain.Category)
	return c, args.Error(1)
}

func (m *MockCatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) CreateSupplier(ctx context.Context, in catalog.SupplierInput) (*domain.Supplier, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(*domain.Supplier)
	return s, args.Error(1)
}

func (m *MockCatalogService) GetSupplier(ctx context.Context, id uuid.UUID) (*domain.Supplier, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*domain.Supplier)
	return s, args.Error(1)
}

func (m *MockCatalogService) UpdateSupplier(ctx context.Context, id uuid.UUID, expectedVersion int, in catalog.SupplierInput) (*domain.Supplier, error) {
	args := m.Called(ctx, id, expectedVersion, in)
	s, _ := args.Get(0).(*domain.Supplier)
	return s, args.Error(1)
}

func (m *MockCatalogService) DeleteSupplier(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Reserve(ctx context.Context, productID uuid.UUID, qty, expectedVersion int) (*domain.Product, error) {
	args := m.Called(ctx, productID, qty, expectedVersion)
	return product(args.Get(0)), args.Error(1)
}

func (m *MockLedgerService) Release(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	args := m.Called(ctx, productID, qty)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerService) Commit(ctx context.Context, productID uuid.UUID, qty int) (*domain.Product, error) {
	args := m.Called(ctx, productID, qty)
	return product(args.Get(0)), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) PlaceOrder(ctx context.Context, principal domain.Principal, customerID uuid.UUID, items []orders.ItemRequest) (*domain.Order, error) {
	args := m.Called(ctx, principal, customerID, items)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) CompleteOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error) {
	args := m.Called(ctx, principal, orderID, expectedVersion)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error) {
	args := m.Called(ctx, principal, orderID, expectedVersion)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, principal domain.Principal, orderID uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, principal, orderID)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Create(ctx context.Context, principal domain.Principal, in users.RegisterInput, role domain.Role) (*domain.User, error) {
	args := m.Called(ctx, principal, in, role)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *MockUserService) Get(ctx context.Context, principal domain.Principal, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, principal, id)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *MockUserService) Update(ctx context.Context, principal domain.Principal, id uuid.UUID, expectedVersion int, patch users.Patch) (*domain.User, error) {
	args := m.Called(ctx, principal, id, expectedVersion, patch)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *MockUserService) Delete(ctx context.Context, principal domain.Principal, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, principal, id)
	return args.Bool(0), args.Error(1)
}

type MockViews struct {
	mock.Mock
}

func (m *MockViews) LowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	args := m.Called(ctx, threshold)
	p, _ := args.Get(0).([]*domain.Product)
	return p, args.Error(1)
}

func (m *MockViews) OutOfStock(ctx context.Context) ([]*domain.Product, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]*domain.Product)
	return p, args.Error(1)
}

func (m *MockViews) EnrichedProducts(ctx context.Context, categoryID *uuid.UUID) ([]projection.EnrichedProduct, error) {
	args := m.Called(ctx, categoryID)
	p, _ := args.Get(0).([]projection.EnrichedProduct)
	return p, args.Error(1)
}

func (m *MockViews) OrdersForCustomer(ctx context.Context, customerID uuid.UUID) ([]*domain.Order, error) {
	args := m.Called(ctx, customerID)
	o, _ := args.Get(0).([]*domain.Order)
	return o, args.Error(1)
}

func (m *MockViews) OrdersByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	args := m.Called(ctx, status)
	o, _ := args.Get(0).([]*domain.Order)
	return o, args.Error(1)
}

func (m *MockViews) AllOrders(ctx context.Context) ([]*domain.Order, error) {
	args := m.Called(ctx)
	o, _ := args.Get(0).([]*domain.Order)
	return o, args.Error(1)
}

func (m *MockViews) SearchUsers(ctx context.Context, query string, role domain.Role) ([]*domain.User, error) {
	args := m.Called(ctx, query, role)
	u, _ := args.Get(0).([]*domain.User)
	return u, args.Error(1)
}

func (m *MockViews) SuppliersByName(ctx context.Context) ([]*domain.Supplier, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).([]*domain.Supplier)
	return s, args.Error(1)
}

func (m *MockViews) SuppliersMap(ctx context.Context) (*projection.SupplierMap, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*projection.SupplierMap)
	return s, args.Error(1)
}

func (m *MockViews) Dashboard(ctx context.Context) (*projection.DashboardStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*projection.DashboardStats)
	return s, args.Error(1)
}

func (m *MockViews) AuditEntries(ctx context.Context, state domain.AuditState) ([]*domain.AuditEntry, error) {
	args := m.Called(ctx, state)
	e, _ := args.Get(0).([]*domain.AuditEntry)
	return e, args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, auditID uuid.UUID) (*domain.AuditEntry, error) {
	args := m.Called(ctx, auditID)
	e, _ := args.Get(0).(*domain.AuditEntry)
	return e, args.Error(1)
}

func (m *MockReconciler) Sweep(ctx context.Context) (reconcile.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(reconcile.SweepResult), args.Error(1)
}

func product(v interface{}) *domain.Product {
	p, _ := v.(*domain.Product)
	return p
}

// newTestRouter returns a router that authenticates every request as
// principal and renders c.Errors the way the production error handler does.
func newTestRouter(principal domain.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			stdErr := apperrors.FromError(c.Errors.Last().Err)
			c.JSON(stdErr.HTTPStatus(), stdErr)
		}
	})
	router.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalContextKey, principal)
		c.Next()
	})
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) apperrors.StandardError {
	var stdErr apperrors.StandardError
	_ = json.Unmarshal(w.Body.Bytes(), &stdErr)
	return stdErr
}

func admin() domain.Principal {
	return domain.Principal{UserID: uuid.New(), Role: domain.RoleAdmin}
}

func customer() domain.Principal {
	return domain.Principal{UserID: uuid.New(), Role: domain.RoleCustomer}
}
