package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// InitializePayment handles POST /api/v1/orders/:id/payment
func (h *Handlers) InitializePayment(c *gin.Context) {
	result, err := h.paymentService.InitializePayment(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// callbackBody covers the reference field names used by the supported providers.
// PayPal webhooks wrap the order in resource and echo our reference as reference_id.
type callbackBody struct {
	Reference string           `json:"reference"`
	TxRef     string           `json:"tx_ref"`
	TrxRef    string           `json:"trx_ref"`
	EventType string           `json:"event_type"`
	Resource  *webhookResource `json:"resource"`
}

type webhookResource struct {
	ID            string `json:"id"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
	} `json:"purchase_units"`
}

func (b *callbackBody) reference() string {
	if ref := firstNonEmpty(b.Reference, b.TxRef, b.TrxRef); ref != "" {
		return ref
	}
	if b.Resource != nil && len(b.Resource.PurchaseUnits) > 0 {
		return strings.TrimSpace(b.Resource.PurchaseUnits[0].ReferenceID)
	}
	return ""
}

// PaymentCallback handles GET and POST /api/v1/payments/:provider/callback.
// Chapa posts a webhook and redirects with tx_ref; the PayPal return URL carries ?reference=
// and its webhook carries the reference in resource.purchase_units.
func (h *Handlers) PaymentCallback(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	reference := firstNonEmpty(c.Query("reference"), c.Query("tx_ref"), c.Query("trx_ref"))

	if reference == "" && c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		var body callbackBody
		if err := c.ShouldBindJSON(&body); err != nil {
			h.logger.Warn("Failed to bind callback body", logging.Fields{
				"provider": provider,
				"error":    err.Error(),
			})
			badRequest(c, "invalid callback body")
			return
		}
		reference = body.reference()

		// Webhook events without purchase units (captures, refunds) are acknowledged and dropped.
		if reference == "" && body.Resource != nil {
			h.logger.Info("Webhook event without reference ignored", logging.Fields{
				"provider":    provider,
				"event_type":  body.EventType,
				"resource_id": body.Resource.ID,
			})
			c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
			return
		}
	}

	order, err := h.paymentService.HandlePaymentCallback(c.Request.Context(), &models.PaymentCallback{
		Provider:  provider,
		Reference: reference,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": order.ID,
		"status":   order.Status,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
