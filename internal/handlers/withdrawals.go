package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// RequestWithdrawal handles POST /api/v1/withdrawals
func (h *Handlers) RequestWithdrawal(c *gin.Context) {
	var req models.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind withdrawal request", logging.Fields{"error": err.Error()})
		badRequest(c, "invalid request body")
		return
	}

	w, err := h.withdrawalService.RequestWithdrawal(c.Request.Context(), identity(c), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

// ListWithdrawals handles GET /api/v1/withdrawals
func (h *Handlers) ListWithdrawals(c *gin.Context) {
	filter := models.WithdrawalListFilter{SellerID: c.Query("seller_id")}
	if s := c.Query("status"); s != "" {
		st := models.WithdrawalStatus(s)
		filter.Status = &st
	}
	filter.Limit, filter.Offset = pageParams(c)

	withdrawals, total, err := h.withdrawalService.ListWithdrawals(c.Request.Context(), identity(c), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawals": withdrawals,
		"total":       total,
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

// GetWithdrawal handles GET /api/v1/withdrawals/:id
func (h *Handlers) GetWithdrawal(c *gin.Context) {
	w, err := h.withdrawalService.GetWithdrawal(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// GetWithdrawalStats handles GET /api/v1/withdrawals/stats
func (h *Handlers) GetWithdrawalStats(c *gin.Context) {
	stats, err := h.withdrawalService.GetWithdrawalStats(c.Request.Context(), identity(c), c.Query("seller_id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// UpdateWithdrawalStatus handles PATCH /api/v1/admin/withdrawals/:id/status
func (h *Handlers) UpdateWithdrawalStatus(c *gin.Context) {
	var req models.UpdateWithdrawalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	w, err := h.withdrawalService.UpdateWithdrawalStatus(c.Request.Context(), identity(c), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, w)
}
