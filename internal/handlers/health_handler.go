package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is anything the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	logger  *zap.Logger
	service string
	store   Pinger
}

func NewHealthHandler(logger *zap.Logger, service string, store Pinger) *HealthHandler {
	return &HealthHandler{logger: logger, service: service, store: store}
}

// Health godoc
// @Summary      Health check
// @Description  Reports whether the service and its store are reachable
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	storeStatus := "up"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("Store ping failed", zap.Error(err))
		status, code = "unhealthy", http.StatusServiceUnavailable
		storeStatus = "down"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   h.service,
		"store":     storeStatus,
		"timestamp": time.Now().UTC(),
	})
}
