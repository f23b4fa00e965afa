package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"inventory-service/internal/catalog"
	"inventory-service/internal/domain"
	"inventory-service/internal/projection"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupProductRouter(cat *MockCatalogService, led *MockLedgerService, views *MockViews) *gin.Engine {
	handler := NewProductHandler(zap.NewNop(), cat, led, views)
	router := newTestRouter(admin())
	products := router.Group("/api/v1/products")
	{
		products.POST("", handler.CreateProduct)
		products.GET("", handler.ListProducts)
		products.POST("/bulk-delete", handler.BulkDeleteProducts)
		products.GET("/:id", handler.GetProduct)
		products.PUT("/:id", handler.UpdateProduct)
		products.DELETE("/:id", handler.DeleteProduct)
		products.POST("/:id/adjust", handler.AdjustStock)
		products.POST("/:id/reserve", handler.ReserveStock)
		products.POST("/:id/release", handler.ReleaseStock)
		products.POST("/:id/commit", handler.CommitStock)
	}
	return router
}

func testProduct() *domain.Product {
	return &domain.Product{
		Record:     domain.Record{ID: uuid.New(), Version: 1},
		Name:       "Claw hammer",
		PriceCents: 1299,
		Stock:      25,
	}
}

func TestCreateProduct(t *testing.T) {
	// Setup
	cat := new(MockCatalogService)
	router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
	p := testProduct()

	cat.On("CreateProduct", mock.Anything, catalog.ProductInput{
		Name:       "Claw hammer",
		PriceCents: 1299,
		Stock:      25,
	}).Return(p, nil)

	// Execute
	w := doJSON(router, "POST", "/api/v1/products", ProductRequest{Name: "Claw hammer", PriceCents: 1299, Stock: 25})

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	var got domain.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, p.ID, got.ID)
	cat.AssertExpectations(t)
}

func TestCreateProduct_Invalid(t *testing.T) {
	// Setup
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing name", map[string]interface{}{"price_cents": 10}},
		{"negative price", map[string]interface{}{"name": "x", "price_cents": -1}},
		{"negative stock", map[string]interface{}{"name": "x", "stock": -5}},
		{"not json", "just a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			cat := new(MockCatalogService)
			router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))

			// Execute
			w := doJSON(router, "POST", "/api/v1/products", tt.body)

			// Assert
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "InvalidRequest", decodeError(w).Code)
			cat.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
		})
	}
}

func TestGetProduct(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		// Setup
		cat := new(MockCatalogService)
		router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
		p := testProduct()
		cat.On("GetProduct", mock.Anything, p.ID).Return(p, nil)

		// Execute
		w := doJSON(router, "GET", "/api/v1/products/"+p.ID.String(), nil)

		// Assert
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		// Setup
		cat := new(MockCatalogService)
		router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
		id := uuid.New()
		cat.On("GetProduct", mock.Anything, id).Return(nil, domain.NewNotFound("product", id))

		// Execute
		w := doJSON(router, "GET", "/api/v1/products/"+id.String(), nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NotFound", decodeError(w).Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		// Setup
		cat := new(MockCatalogService)
		router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))

		// Execute
		w := doJSON(router, "GET", "/api/v1/products/not-a-uuid", nil)

		// Assert
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ValidationError", decodeError(w).Code)
	})
}

func TestUpdateProduct(t *testing.T) {
	t.Run("version required", func(t *testing.T) {
		// Setup
		cat := new(MockCatalogService)
		router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))

		// Execute
		w := doJSON(router, "PUT", "/api/v1/products/"+uuid.NewString(), ProductRequest{Name: "x"})

		// Assert
		assert.Equal(t, http.StatusBadRequest, w.Code)
		cat.AssertNotCalled(t, "UpdateProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stale version", func(t *testing.T) {
		// Setup
		cat := new(MockCatalogService)
		router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
		id := uuid.New()
		cat.On("UpdateProduct", mock.Anything, id, 1, catalog.ProductInput{Name: "x"}).
			Return(nil, domain.NewVersionConflict("product", id, 1, 2))

		// Execute
		w := doJSON(router, "PUT", "/api/v1/products/"+id.String(), ProductRequest{Name: "x", Stock: 99, Version: 1})

		// Assert
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "VersionConflict", decodeError(w).Code)
		cat.AssertExpectations(t)
	})
}

func TestDeleteProduct_Referenced(t *testing.T) {
	// Setup
	cat := new(MockCatalogService)
	router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
	id := uuid.New()
	cat.On("DeleteProduct", mock.Anything, id).
		Return(domain.NewReferentialConflict("product", id, "referenced by a pending order"))

	// Execute
	w := doJSON(router, "DELETE", "/api/v1/products/"+id.String(), nil)

	// Assert
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ReferentialConflict", decodeError(w).Code)
}

func TestBulkDeleteProducts(t *testing.T) {
	// Setup
	cat := new(MockCatalogService)
	router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
	ok, missing := uuid.New(), uuid.New()
	cat.On("DeleteProducts", mock.Anything, []uuid.UUID{ok, missing}).Return([]catalog.DeleteResult{
		{ID: ok, Deleted: true},
		{ID: missing, Error: "not found"},
	})

	// Execute
	w := doJSON(router, "POST", "/api/v1/products/bulk-delete", BulkDeleteRequest{IDs: []uuid.UUID{ok, missing}})

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var results []catalog.DeleteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Deleted)
	assert.False(t, results[1].Deleted)
}

func TestListProducts_CategoryFilter(t *testing.T) {
	// Setup
	views := new(MockViews)
	router := setupProductRouter(new(MockCatalogService), new(MockLedgerService), views)
	categoryID := uuid.New()
	views.On("EnrichedProducts", mock.Anything, &categoryID).Return([]projection.EnrichedProduct{
		{Product: testProduct(), CategoryName: "Hand tools", Available: 25},
	}, nil)

	// Execute
	w := doJSON(router, "GET", "/api/v1/products?category_id="+categoryID.String(), nil)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var list []projection.EnrichedProduct
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Hand tools", list[0].CategoryName)

	w = doJSON(router, "GET", "/api/v1/products?category_id=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjustStock_Insufficient(t *testing.T) {
	// Setup
	cat := new(MockCatalogService)
	router := setupProductRouter(cat, new(MockLedgerService), new(MockViews))
	id := uuid.New()
	cat.On("AdjustStock", mock.Anything, id, -30).Return(nil, domain.NewInsufficientStock(id, 5, 30))

	// Execute
	w := doJSON(router, "POST", "/api/v1/products/"+id.String()+"/adjust", AdjustStockRequest{Delta: -30})

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InsufficientStock", decodeError(w).Code)
}

func TestLedgerEndpoints(t *testing.T) {
	t.Run("reserve needs version", func(t *testing.T) {
		// Setup
		led := new(MockLedgerService)
		router := setupProductRouter(new(MockCatalogService), led, new(MockViews))

		// Execute
		w := doJSON(router, "POST", "/api/v1/products/"+uuid.NewString()+"/reserve", QuantityRequest{Quantity: 2})

		// Assert
		assert.Equal(t, http.StatusBadRequest, w.Code)
		led.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reserve", func(t *testing.T) {
		// Setup
		led := new(MockLedgerService)
		router := setupProductRouter(new(MockCatalogService), led, new(MockViews))
		p := testProduct()
		p.Reserved = 2
		led.On("Reserve", mock.Anything, p.ID, 2, 1).Return(p, nil)

		// Execute
		w := doJSON(router, "POST", "/api/v1/products/"+p.ID.String()+"/reserve", QuantityRequest{Quantity: 2, Version: 1})

		// Assert
		assert.Equal(t, http.StatusOK, w.Code)
		led.AssertExpectations(t)
	})

	t.Run("release reports released count", func(t *testing.T) {
		// Setup
		led := new(MockLedgerService)
		router := setupProductRouter(new(MockCatalogService), led, new(MockViews))
		id := uuid.New()
		led.On("Release", mock.Anything, id, 5).Return(3, nil)

		// Execute
		w := doJSON(router, "POST", "/api/v1/products/"+id.String()+"/release", QuantityRequest{Quantity: 5})

		// Assert
		require.Equal(t, http.StatusOK, w.Code)
		var resp ReleaseResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Released)
		assert.Equal(t, id, resp.ProductID)
	})

	t.Run("commit beyond reserved", func(t *testing.T) {
		// Setup
		led := new(MockLedgerService)
		router := setupProductRouter(new(MockCatalogService), led, new(MockViews))
		id := uuid.New()
		led.On("Commit", mock.Anything, id, 4).Return(nil, domain.NewInvalidArgument("cannot commit 4, only 1 reserved"))

		// Execute
		w := doJSON(router, "POST", "/api/v1/products/"+id.String()+"/commit", QuantityRequest{Quantity: 4})

		// Assert
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InvalidArgument", decodeError(w).Code)
	})
}
