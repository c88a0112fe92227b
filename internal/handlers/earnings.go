package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEarnings handles GET /api/v1/earnings
// Admins may pass ?seller_id= to inspect another seller.
func (h *Handlers) GetEarnings(c *gin.Context) {
	summary, err := h.ledgerService.GetEarningsSummary(c.Request.Context(), identity(c), c.Query("seller_id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
