package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// settingsResponse renders windows in seconds, matching the update request.
func settingsResponse(s *models.Settings) gin.H {
	return gin.H{
		"commission_rate":                 s.CommissionRate,
		"min_withdrawal":                  s.MinWithdrawal,
		"max_withdrawal":                  s.MaxWithdrawal,
		"order_expire_after_seconds":      int64(s.OrderExpireAfter.Seconds()),
		"order_auto_cancel_after_seconds": int64(s.OrderAutoCancelAfter.Seconds()),
		"updated_at":                      s.UpdatedAt,
	}
}

// GetSettings handles GET /api/v1/admin/settings
func (h *Handlers) GetSettings(c *gin.Context) {
	s, err := h.settingsService.GetSettings(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, settingsResponse(s))
}

// UpdateSettings handles PATCH /api/v1/admin/settings
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	s, err := h.settingsService.UpdateSettings(c.Request.Context(), identity(c), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, settingsResponse(s))
}
