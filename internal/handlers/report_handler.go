package handlers

import (
	"net/http"
	"strconv"

	"inventory-service/internal/domain"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReportHandler serves read-only projections and the audit trail.
type ReportHandler struct {
	logger     *zap.Logger
	views      Views
	reconciler Reconciler
}

func NewReportHandler(logger *zap.Logger, views Views, reconciler Reconciler) *ReportHandler {
	return &ReportHandler{logger: logger, views: views, reconciler: reconciler}
}

// LowStock handles GET /api/v1/reports/low-stock
// @Summary      Products running low
// @Description  Products with 0 < stock < threshold, lowest first. Defaults to LOW_STOCK_THRESHOLD.
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        threshold  query     int  false  "Stock threshold"
// @Success      200        {array}   domain.Product
// @Failure      400        {object}  errors.StandardError
// @Router       /reports/low-stock [get]
func (h *ReportHandler) LowStock(c *gin.Context) {
	threshold := 0
	if raw := c.Query("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fail(c, apperrors.NewValidationError("threshold must be a positive integer", "threshold"))
			return
		}
		threshold = n
	}
	products, err := h.views.LowStock(c.Request.Context(), threshold)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// OutOfStock handles GET /api/v1/reports/out-of-stock
// @Summary      Products with no stock
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.Product
// @Router       /reports/out-of-stock [get]
func (h *ReportHandler) OutOfStock(c *gin.Context) {
	products, err := h.views.OutOfStock(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// Dashboard handles GET /api/v1/reports/dashboard
// @Summary      Dashboard totals
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  projection.DashboardStats
// @Router       /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	stats, err := h.views.Dashboard(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SuppliersMap handles GET /api/v1/reports/suppliers/map
// @Summary      Supplier map markers
// @Description  One marker per located supplier; the center is their mean position.
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  projection.SupplierMap
// @Router       /reports/suppliers/map [get]
func (h *ReportHandler) SuppliersMap(c *gin.Context) {
	m, err := h.views.SuppliersMap(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// ListAudit handles GET /api/v1/audit
// @Summary      List audit entries
// @Description  Partial commit records, newest first. Admins only.
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        state  query     string  false  "open, resolved or manual"
// @Success      200    {array}   domain.AuditEntry
// @Failure      400    {object}  errors.StandardError
// @Router       /audit [get]
func (h *ReportHandler) ListAudit(c *gin.Context) {
	entries, err := h.views.AuditEntries(c.Request.Context(), domain.AuditState(c.Query("state")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ReconcileAudit handles POST /api/v1/audit/:id/reconcile
// @Summary      Reconcile an audit entry
// @Description  Runs the reconciler on one entry now. Also retries entries that escalated to manual.
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Audit entry ID"
// @Success      200  {object}  domain.AuditEntry
// @Failure      404  {object}  errors.StandardError
// @Router       /audit/{id}/reconcile [post]
func (h *ReportHandler) ReconcileAudit(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	entry, err := h.reconciler.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("Reconcile failed",
			zap.String("audit_id", id.String()),
			zap.Error(err),
		)
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// SweepAudit handles POST /api/v1/audit/sweep
// @Summary      Reconcile every open entry
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  reconcile.SweepResult
// @Router       /audit/sweep [post]
func (h *ReportHandler) SweepAudit(c *gin.Context) {
	result, err := h.reconciler.Sweep(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
