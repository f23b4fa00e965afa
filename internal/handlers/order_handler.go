package handlers

import (
	"context"
	"net/http"

	"inventory-service/internal/domain"
	"inventory-service/internal/orders"
	apperrors "inventory-service/pkg/errors"
	"inventory-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderHandler struct {
	logger *zap.Logger
	orders OrderService
	views  Views
}

func NewOrderHandler(logger *zap.Logger, orders OrderService, views Views) *OrderHandler {
	return &OrderHandler{logger: logger, orders: orders, views: views}
}

func withTotal(o *domain.Order) OrderResponse {
	return OrderResponse{Order: o, TotalCents: o.TotalCents()}
}

// PlaceOrder handles POST /api/v1/orders
// @Summary      Place an order
// @Description  Reserves every item at its current price. Either all items are reserved or none are.
// @Description  Customers order for themselves; admins may set customer_id.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string             false  "Request ID for idempotency"
// @Param        request       body      PlaceOrderRequest  true   "Order items"
// @Success      201           {object}  OrderResponse
// @Failure      400           {object}  errors.StandardError  "Invalid items or insufficient stock"
// @Failure      403           {object}  errors.StandardError
// @Failure      404           {object}  errors.StandardError  "Unknown product or customer"
// @Router       /orders [post]
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !bind(c, h.logger, &req) {
		return
	}

	principal := middleware.GetPrincipal(c)
	customerID := principal.UserID
	if req.CustomerID != nil {
		customerID = *req.CustomerID
	}

	items := make([]orders.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = orders.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), principal, customerID, items)
	if err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", order.CustomerID.String()),
		zap.Int("items", len(order.Items)),
	)
	c.JSON(http.StatusCreated, withTotal(order))
}

// ListOrders handles GET /api/v1/orders
// @Summary      List orders
// @Description  Admins see every order and may filter by status; customers see their own. Newest first.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "pending, completed or cancelled (admins only)"
// @Success      200     {array}   OrderResponse
// @Failure      400     {object}  errors.StandardError
// @Router       /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	ctx := c.Request.Context()

	var (
		list []*domain.Order
		err  error
	)
	switch {
	case !principal.IsAdmin():
		list, err = h.views.OrdersForCustomer(ctx, principal.UserID)
	case c.Query("status") != "":
		status, perr := domain.ParseStatus(c.Query("status"))
		if perr != nil {
			fail(c, perr)
			return
		}
		list, err = h.views.OrdersByStatus(ctx, status)
	default:
		list, err = h.views.AllOrders(ctx)
	}
	if err != nil {
		fail(c, err)
		return
	}

	response := make([]OrderResponse, len(list))
	for i, o := range list {
		response[i] = withTotal(o)
	}
	c.JSON(http.StatusOK, response)
}

// GetOrder handles GET /api/v1/orders/:id
// @Summary      Get an order with its total
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  OrderResponse
// @Failure      403  {object}  errors.StandardError
// @Failure      404  {object}  errors.StandardError
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, withTotal(order))
}

// CompleteOrder handles POST /api/v1/orders/:id/complete
// @Summary      Complete an order
// @Description  Commits every reserved item and marks the order completed. Admins only.
// @Description  A failure after some items were committed returns 500 PartialCommitFailure with the audit entry id.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string          true  "Order ID"
// @Param        request  body      VersionRequest  true  "Expected order version"
// @Success      200      {object}  OrderResponse
// @Failure      403      {object}  errors.StandardError
// @Failure      409      {object}  errors.StandardError  "Version conflict or order not pending"
// @Failure      500      {object}  errors.StandardError  "Partial commit failure"
// @Router       /orders/{id}/complete [post]
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	h.finish(c, h.orders.CompleteOrder)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
// @Summary      Cancel an order
// @Description  Releases every reserved item and marks the order cancelled. Owner or admin.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string          true  "Order ID"
// @Param        request  body      VersionRequest  true  "Expected order version"
// @Success      200      {object}  OrderResponse
// @Failure      403      {object}  errors.StandardError
// @Failure      409      {object}  errors.StandardError  "Version conflict or order not pending"
// @Failure      500      {object}  errors.StandardError  "Partial commit failure"
// @Router       /orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.finish(c, h.orders.CancelOrder)
}

type finishFunc func(ctx context.Context, principal domain.Principal, orderID uuid.UUID, expectedVersion int) (*domain.Order, error)

func (h *OrderHandler) finish(c *gin.Context, fn finishFunc) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req VersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.NewValidationError("version is required", "version"))
		return
	}

	order, err := fn(c.Request.Context(), middleware.GetPrincipal(c), id, req.Version)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, withTotal(order))
}
