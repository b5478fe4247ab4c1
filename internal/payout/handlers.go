package payout

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for payout queries and retries.
type Handler struct {
	service *Service
}

// NewHandler creates a payout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the payout routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/orders/:id/payout", h.GetByOrder)
	r.GET("/lawyers/:id/payouts", h.ListByLawyer)
	r.POST("/payouts/:id/retry", h.Retry)
	r.POST("/payouts/:id/cancel", h.Cancel)
}

// GetByOrder handles GET /v1/orders/:id/payout
func (h *Handler) GetByOrder(c *gin.Context) {
	p, err := h.service.GetByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListByLawyer handles GET /v1/lawyers/:id/payouts
func (h *Handler) ListByLawyer(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	payouts, err := h.service.ListByLawyer(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

// Retry handles POST /v1/payouts/:id/retry
//
// Only failed or still-pending payouts are retried; anything already
// in transit or paid comes back unchanged.
func (h *Handler) Retry(c *gin.Context) {
	p, err := h.service.Retry(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Cancel handles POST /v1/payouts/:id/cancel
//
// Voids a payout that has not reached the gateway. 409 once the funds
// are in transit or settled.
func (h *Handler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	p, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Payout not found",
		})
	case errors.Is(err, ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_cancellable",
			"message": "Payout is already in transit or settled",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
	}
}
