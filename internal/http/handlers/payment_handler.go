// Payment webhook handler.
//
// This file exposes the inbound callback used by the payment provider:
//   - POST /payments/webhook
//
// The raw body is authenticated with an HMAC-SHA256 signature carried in the
// X-Webhook-Signature header before any state is touched. A bad or missing
// signature yields 401 and leaves the commission unchanged.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/palettehub/commission-backend/internal/http/middleware"
)

// HeaderWebhookSignature carries the hex-encoded HMAC-SHA256 of the raw
// webhook body, computed with the shared webhook secret.
const HeaderWebhookSignature = "X-Webhook-Signature"

// maxWebhookBody caps the webhook payload size.
const maxWebhookBody = 64 << 10 // 64 KiB

// PaymentWebhookRequest is the JSON payload sent by the payment provider.
type PaymentWebhookRequest struct {
	// CommissionID identifies the commission the payment settles.
	CommissionID uint64 `json:"commission_id" binding:"required" example:"17"`
	// Paid reports the payment outcome; false records a reversal.
	Paid bool `json:"paid" example:"true"`
	// Event optionally names the provider-side event type.
	Event string `json:"event,omitempty" example:"payment.settled"`
}

// PaymentWebhook godoc
// @ID          paymentWebhook
// @Summary     Payment provider callback
// @Description Verifies the HMAC signature over the raw body, then records the
// @Description payment outcome and notifies connected clients. Invalid signatures
// @Description are rejected before any state changes.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-Webhook-Signature  header  string  true  "Hex HMAC-SHA256 of the raw body"
// @Param       body                 body    handlers.PaymentWebhookRequest  true  "Payment event"
//
// @Success     200  {object}  map[string]any "Recorded"
// @Failure     400  {object}  handlers.ErrorResponse "Malformed payload"
// @Failure     401  {object}  handlers.ErrorResponse "Bad signature"
// @Failure     404  {object}  handlers.ErrorResponse "Commission not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /payments/webhook [post]
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}

	sig := strings.TrimSpace(c.GetHeader(HeaderWebhookSignature))
	if !h.paySvc.VerifySignature(body, sig) {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Msg("webhook signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook signature")
		return
	}

	var req PaymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.CommissionID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "commission_id is required")
		return
	}

	if err := h.paySvc.MarkPaid(c.Request.Context(), req.CommissionID, req.Paid); err != nil {
		failService(c, err, ErrCodeWebhookFailed)
		return
	}
	ok(c, http.StatusOK, gin.H{"commission_id": req.CommissionID, "paid": req.Paid})
}
