package api

import (
	"ai_mem/backend/go/internal/memory/store"
	"ai_mem/backend/go/internal/models"
	"ai_mem/backend/go/pkg/logger"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MemoryCreator is the part of the memory service the handlers need.
type MemoryCreator interface {
	Add(ctx context.Context, req *models.MemoryCreationRequest) *models.PipelineResult
}

// API provides handlers for the memory service.
type API struct {
	service MemoryCreator
	health  store.HealthChecker
	logger  *logger.Logger
}

// NewAPI creates a new API handler. health may be nil when the backing
// store cannot report its state.
func NewAPI(service MemoryCreator, health store.HealthChecker, logger *logger.Logger) *API {
	return &API{service: service, health: health, logger: logger}
}

// HomeHandler answers the welcome probe.
func (a *API) HomeHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the ai-mem API!"})
}

// CreateMemoryHandler runs the pipeline for one message. Partial failures
// are reported in the body, never through the status code.
func (a *API) CreateMemoryHandler(c *gin.Context) {
	var req models.MemoryCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.WithErr(err).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	if err := req.Validate(); err != nil {
		a.logger.WithErr(err).Warn("Invalid memory creation request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, a.service.Add(c.Request.Context(), &req))
}

// HealthHandler pings the vector store.
func (a *API) HealthHandler(c *gin.Context) {
	if a.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := a.health.HealthCheck(ctx); err != nil {
		status := "unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		a.logger.WithErr(err).Error("vector store health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": status, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
