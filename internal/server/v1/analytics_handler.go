package v1

import (
	"net/http"
	"strconv"

	"github.com/fghsg9075-lab/aios/internal/analytics"
	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service analytics.Service
}

func NewAnalyticsHandler(service analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetProviderStats aggregates dispatch attempts per provider.
//
// GET /v1/analytics/providers?days=7
func (h *AnalyticsHandler) GetProviderStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 0 {
		_ = c.Error(api.BadRequestError("Invalid 'days' parameter"))
		return
	}

	stats, err := h.service.GetProviderStats(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to fetch analytics", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   stats,
	})
}
