package handlers

import (
	"net/http"

	"inventory-service/internal/catalog"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CatalogHandler serves categories and suppliers.
type CatalogHandler struct {
	logger  *zap.Logger
	catalog CatalogService
	views   Views
}

func NewCatalogHandler(logger *zap.Logger, catalog CatalogService, views Views) *CatalogHandler {
	return &CatalogHandler{logger: logger, catalog: catalog, views: views}
}

// CreateCategory handles POST /api/v1/categories
// @Summary      Create a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CategoryRequest  true  "Category"
// @Success      201      {object}  domain.Category
// @Failure      400      {object}  errors.StandardError
// @Router       /categories [post]
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if !bind(c, h.logger, &req) {
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// ListCategories handles GET /api/v1/categories
// @Summary      List categories by name
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.Category
// @Router       /categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// GetCategory handles GET /api/v1/categories/:id
// @Summary      Get a category
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Category ID"
// @Success      200  {object}  domain.Category
// @Failure      404  {object}  errors.StandardError
// @Router       /categories/{id} [get]
func (h *CatalogHandler) GetCategory(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	category, err := h.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// UpdateCategory handles PUT /api/v1/categories/:id
// @Summary      Update a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string           true  "Category ID"
// @Param        request  body      CategoryRequest  true  "Category with version"
// @Success      200      {object}  domain.Category
// @Failure      409      {object}  errors.StandardError  "Version conflict"
// @Router       /categories/{id} [put]
func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req CategoryRequest
	if !bind(c, h.logger, &req) {
		return
	}
	if req.Version < 1 {
		fail(c, apperrors.NewValidationError("version is required", "version"))
		return
	}
	category, err := h.catalog.UpdateCategory(c.Request.Context(), id, req.Version, req.Name, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// DeleteCategory handles DELETE /api/v1/categories/:id
// @Summary      Delete a category
// @Description  Fails with 409 while products reference the category.
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Category ID"
// @Success      200  {object}  SuccessResponse
// @Failure      409  {object}  errors.StandardError
// @Router       /categories/{id} [delete]
func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "category deleted successfully"})
}

// CreateSupplier handles POST /api/v1/suppliers
// @Summary      Create a supplier
// @Tags         suppliers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SupplierRequest  true  "Supplier"
// @Success      201      {object}  domain.Supplier
// @Failure      400      {object}  errors.StandardError
// @Router       /suppliers [post]
func (h *CatalogHandler) CreateSupplier(c *gin.Context) {
	var req SupplierRequest
	if !bind(c, h.logger, &req) {
		return
	}
	supplier, err := h.catalog.CreateSupplier(c.Request.Context(), supplierInput(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

// ListSuppliers handles GET /api/v1/suppliers
// @Summary      List suppliers by name
// @Tags         suppliers
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.Supplier
// @Router       /suppliers [get]
func (h *CatalogHandler) ListSuppliers(c *gin.Context) {
	suppliers, err := h.views.SuppliersByName(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

// GetSupplier handles GET /api/v1/suppliers/:id
// @Summary      Get a supplier
// @Tags         suppliers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Supplier ID"
// @Success      200  {object}  domain.Supplier
// @Failure      404  {object}  errors.StandardError
// @Router       /suppliers/{id} [get]
func (h *CatalogHandler) GetSupplier(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	supplier, err := h.catalog.GetSupplier(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

// UpdateSupplier handles PUT /api/v1/suppliers/:id
// @Summary      Update a supplier
// @Tags         suppliers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string           true  "Supplier ID"
// @Param        request  body      SupplierRequest  true  "Supplier with version"
// @Success      200      {object}  domain.Supplier
// @Failure      409      {object}  errors.StandardError  "Version conflict"
// @Router       /suppliers/{id} [put]
func (h *CatalogHandler) UpdateSupplier(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req SupplierRequest
	if !bind(c, h.logger, &req) {
		return
	}
	if req.Version < 1 {
		fail(c, apperrors.NewValidationError("version is required", "version"))
		return
	}
	supplier, err := h.catalog.UpdateSupplier(c.Request.Context(), id, req.Version, supplierInput(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

// DeleteSupplier handles DELETE /api/v1/suppliers/:id
// @Summary      Delete a supplier
// @Description  Fails with 409 while products reference the supplier.
// @Tags         suppliers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Supplier ID"
// @Success      200  {object}  SuccessResponse
// @Failure      409  {object}  errors.StandardError
// @Router       /suppliers/{id} [delete]
func (h *CatalogHandler) DeleteSupplier(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	if err := h.catalog.DeleteSupplier(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "supplier deleted successfully"})
}

func supplierInput(req SupplierRequest) catalog.SupplierInput {
	return catalog.SupplierInput{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		Location:      req.Location,
	}
}
