package payee

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for payee onboarding.
type Handler struct {
	directory *Directory
}

// NewHandler creates a payee handler.
func NewHandler(directory *Directory) *Handler {
	return &Handler{directory: directory}
}

// RegisterRoutes sets up the payee routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payees", h.RegisterPayee)
	r.GET("/payees/:id", h.GetPayee)
	r.POST("/payees/:id/verify", h.VerifyPayee)
}

// RegisterPayee handles POST /v1/payees
func (h *Handler) RegisterPayee(c *gin.Context) {
	var req struct {
		LawyerID     string `json:"lawyerId"`
		DisplayName  string `json:"displayName"`
		Email        string `json:"email"`
		BarID        string `json:"barId"`
		Jurisdiction string `json:"jurisdiction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	p := &Profile{
		LawyerID:     req.LawyerID,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		BarID:        req.BarID,
		Jurisdiction: req.Jurisdiction,
	}
	if err := h.directory.Register(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetPayee handles GET /v1/payees/:id
func (h *Handler) GetPayee(c *gin.Context) {
	p, err := h.directory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// VerifyPayee handles POST /v1/payees/:id/verify
//
// In production the account reference arrives from the gateway's
// onboarding flow; here the caller supplies it directly.
func (h *Handler) VerifyPayee(c *gin.Context) {
	var req struct {
		AccountRef string `json:"accountRef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "accountRef is required",
		})
		return
	}

	p, err := h.directory.Verify(c.Request.Context(), c.Param("id"), req.AccountRef)
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
			"message": "Payee not found",
		})
	case errors.Is(err, ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
	}
}
