package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/logging"
)

// maxPayloadBytes bounds webhook bodies. Gateway events are small;
// anything larger is not ours.
const maxPayloadBytes = 64 * 1024

// Handler exposes the gateway webhook endpoint.
type Handler struct {
	processor *Processor
}

// NewHandler creates the webhook HTTP handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

// RegisterRoutes mounts the webhook endpoint on the router group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/gateway/webhook", h.receive)
}

func (h *Handler) receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "unable to read request body",
		})
		return
	}
	if len(payload) > maxPayloadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "payload_too_large",
			"message": "webhook payload exceeds size limit",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	result, err := h.processor.Process(c.Request.Context(), payload, signature)
	if err != nil {
		log := logging.L(c.Request.Context())
		switch {
		case errors.Is(err, gateway.ErrBadSignature):
			log.Warn("webhook signature verification failed")
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_signature",
				"message": "webhook signature verification failed",
			})
		case errors.Is(err, ErrMalformed):
			log.Warn("malformed webhook payload", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_payload",
				"message": "webhook payload could not be decoded",
			})
		default:
			log.Error("webhook processing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "event could not be processed, retry expected",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "result": string(result)})
}
