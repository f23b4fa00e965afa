package handlers

import (
	"net/http"

	"inventory-service/internal/catalog"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProductHandler struct {
	logger  *zap.Logger
	catalog CatalogService
	ledger  LedgerService
	views   Views
}

func NewProductHandler(logger *zap.Logger, catalog CatalogService, ledger LedgerService, views Views) *ProductHandler {
	return &ProductHandler{logger: logger, catalog: catalog, ledger: ledger, views: views}
}

// CreateProduct handles POST /api/v1/products
// @Summary      Create a product
// @Description  Creates a product with its initial stock. Category and supplier, when given, must exist.
// @Description  **Idempotency**: repeat the same X-Request-ID to get the stored response instead of a second product.
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string          false  "Request ID for idempotency"
// @Param        request       body      ProductRequest  true   "Product"
// @Success      201           {object}  domain.Product
// @Failure      400           {object}  errors.StandardError
// @Failure      403           {object}  errors.StandardError
// @Failure      404           {object}  errors.StandardError  "Category or supplier not found"
// @Router       /products [post]
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if !bind(c, h.logger, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
		SupplierID:  req.SupplierID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// ListProducts handles GET /api/v1/products
// @Summary      List products
// @Description  Lists products with category and supplier names, availability and stock flags.
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        category_id  query     string  false  "Only products of this category"
// @Success      200          {array}   projection.EnrichedProduct
// @Failure      400          {object}  errors.StandardError
// @Router       /products [get]
func (h *ProductHandler) ListProducts(c *gin.Context) {
	var categoryID *uuid.UUID
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, apperrors.NewValidationError("invalid category_id", "category_id"))
			return
		}
		categoryID = &id
	}

	products, err := h.views.EnrichedProducts(c.Request.Context(), categoryID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct handles GET /api/v1/products/:id
// @Summary      Get a product
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  domain.Product
// @Failure      404  {object}  errors.StandardError
// @Router       /products/{id} [get]
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// UpdateProduct handles PUT /api/v1/products/:id
// @Summary      Update a product
// @Description  Replaces name, description, price, category and supplier. Stock is ignored; use /adjust.
// @Description  The body must carry the version last read. A stale version returns 409 and nothing changes.
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string          true  "Product ID"
// @Param        request  body      ProductRequest  true  "Product"
// @Success      200      {object}  domain.Product
// @Failure      400      {object}  errors.StandardError
// @Failure      404      {object}  errors.StandardError
// @Failure      409      {object}  errors.StandardError  "Version conflict"
// @Router       /products/{id} [put]
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req ProductRequest
	if !bind(c, h.logger, &req) {
		return
	}
	if req.Version < 1 {
		fail(c, apperrors.NewValidationError("version is required", "version"))
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, req.Version, catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		CategoryID:  req.CategoryID,
		SupplierID:  req.SupplierID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/products/:id
// @Summary      Delete a product
// @Description  Fails with 409 while a pending order references the product.
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  SuccessResponse
// @Failure      404  {object}  errors.StandardError
// @Failure      409  {object}  errors.StandardError
// @Router       /products/{id} [delete]
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "product deleted successfully"})
}

// BulkDeleteProducts handles POST /api/v1/products/bulk-delete
// @Summary      Delete several products
// @Description  Deletes each id independently and reports the outcome per id.
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      BulkDeleteRequest  true  "Product IDs"
// @Success      200      {array}   catalog.DeleteResult
// @Failure      400      {object}  errors.StandardError
// @Router       /products/bulk-delete [post]
func (h *ProductHandler) BulkDeleteProducts(c *gin.Context) {
	var req BulkDeleteRequest
	if !bind(c, h.logger, &req) {
		return
	}
	c.JSON(http.StatusOK, h.catalog.DeleteProducts(c.Request.Context(), req.IDs))
}

// AdjustStock handles POST /api/v1/products/:id/adjust
// @Summary      Adjust stock on hand
// @Description  Positive delta restocks, negative writes off. Stock may not fall below the reserved quantity.
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string              true  "Product ID"
// @Param        request  body      AdjustStockRequest  true  "Adjustment"
// @Success      200      {object}  domain.Product
// @Failure      400      {object}  errors.StandardError  "Zero delta or insufficient stock"
// @Failure      404      {object}  errors.StandardError
// @Router       /products/{id}/adjust [post]
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req AdjustStockRequest
	if !bind(c, h.logger, &req) {
		return
	}
	product, err := h.catalog.AdjustStock(c.Request.Context(), id, req.Delta)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// ReserveStock handles POST /api/v1/products/:id/reserve
// @Summary      Reserve stock
// @Description  Holds quantity units against the given product version. Orders reserve on their own; this is an operator tool.
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string           true  "Product ID"
// @Param        request  body      QuantityRequest  true  "Quantity and expected version"
// @Success      200      {object}  domain.Product
// @Failure      400      {object}  errors.StandardError  "Insufficient stock"
// @Failure      409      {object}  errors.StandardError  "Version conflict"
// @Router       /products/{id}/reserve [post]
func (h *ProductHandler) ReserveStock(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req QuantityRequest
	if !bind(c, h.logger, &req) {
		return
	}
	if req.Version < 1 {
		fail(c, apperrors.NewValidationError("version is required", "version"))
		return
	}
	product, err := h.ledger.Reserve(c.Request.Context(), id, req.Quantity, req.Version)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// ReleaseStock handles POST /api/v1/products/:id/release
// @Summary      Release reserved stock
// @Description  Releases up to quantity reserved units and reports how many were released.
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string           true  "Product ID"
// @Param        request  body      QuantityRequest  true  "Quantity"
// @Success      200      {object}  ReleaseResponse
// @Failure      404      {object}  errors.StandardError
// @Router       /products/{id}/release [post]
func (h *ProductHandler) ReleaseStock(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req QuantityRequest
	if !bind(c, h.logger, &req) {
		return
	}
	released, err := h.ledger.Release(c.Request.Context(), id, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ReleaseResponse{ProductID: id, Released: released})
}

// CommitStock handles POST /api/v1/products/:id/commit
// @Summary      Commit reserved stock
// @Description  Ships quantity reserved units, removing them from stock and reservation.
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string           true  "Product ID"
// @Param        request  body      QuantityRequest  true  "Quantity"
// @Success      200      {object}  domain.Product
// @Failure      400      {object}  errors.StandardError  "Not enough reserved"
// @Failure      404      {object}  errors.StandardError
// @Router       /products/{id}/commit [post]
func (h *ProductHandler) CommitStock(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req QuantityRequest
	if !bind(c, h.logger, &req) {
		return
	}
	product, err := h.ledger.Commit(c.Request.Context(), id, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
