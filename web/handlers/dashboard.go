// Package handlers holds the gin HTTP handlers of the dashboard API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/models"
)

const dateLayout = "2006-01-02"

// defaultRangeDays is used when the caller omits the date range.
const defaultRangeDays = 30

// DashboardService is the orchestrator surface the HTTP layer consumes.
type DashboardService interface {
	GetDashboardData(ctx context.Context, clientID string, dateRange models.DateRange, forceRefresh bool) (*models.DashboardAggregate, error)
	InvalidateCache(clientID, dependency string) int
}

type DashboardHandler struct {
	svc    DashboardService
	logger *zap.Logger
}

func NewDashboardHandler(svc DashboardService, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DashboardHandler{svc: svc, logger: logger}
}

// Register mounts the dashboard routes on the given router group.
func (h *DashboardHandler) Register(r gin.IRouter) {
	r.GET("/dashboard/:clientID", h.HandleGetDashboard)
	r.POST("/cache/invalidate", h.HandleInvalidateCache)
}

// HandleGetDashboard serves the merged metrics for one client. Query
// parameters: start and end (YYYY-MM-DD, defaulting to the last 30 days)
// and force=true to bypass the cache.
func (h *DashboardHandler) HandleGetDashboard(c *gin.Context) {
	clientID := c.Param("clientID")

	dateRange, err := parseDateRange(c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	force := c.Query("force") == "true"

	agg, err := h.svc.GetDashboardData(c.Request.Context(), clientID, dateRange, force)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})

			return
		}

		h.logger.Error("failed to build dashboard",
			zap.Error(err),
			zap.String("client_id", clientID))

		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build dashboard"})

		return
	}

	c.JSON(http.StatusOK, agg)
}

type invalidateRequest struct {
	ClientID   string `json:"client_id"`
	Dependency string `json:"dependency"`
}

// HandleInvalidateCache drops cached aggregates by client id, dependency
// tag, or entirely when the body names neither.
func (h *DashboardHandler) HandleInvalidateCache(c *gin.Context) {
	var req invalidateRequest

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

			return
		}
	}

	dropped := h.svc.InvalidateCache(req.ClientID, req.Dependency)

	c.JSON(http.StatusOK, gin.H{"dropped": dropped})
}

func parseDateRange(start, end string) (models.DateRange, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)

	endDate := now
	if end != "" {
		parsed, err := time.Parse(dateLayout, end)
		if err != nil {
			return models.DateRange{}, errors.New("invalid end date, expected YYYY-MM-DD")
		}

		endDate = parsed
	}

	startDate := endDate.AddDate(0, 0, -(defaultRangeDays - 1))
	if start != "" {
		parsed, err := time.Parse(dateLayout, start)
		if err != nil {
			return models.DateRange{}, errors.New("invalid start date, expected YYYY-MM-DD")
		}

		startDate = parsed
	}

	return models.NewDateRange(startDate, endDate)
}
