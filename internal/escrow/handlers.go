package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/payments"
	"github.com/servimarket/disputes/internal/validation"
)

// Handler exposes escrow operations over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates an escrow HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts escrow routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/escrows", h.create)
	rg.GET("/escrows", h.list)
	rg.GET("/escrows/:id", validation.IDParamMiddleware("id"), h.get)
	rg.POST("/escrows/:id/release", validation.IDParamMiddleware("id"), h.release)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := validation.Validate(
		validation.PositiveAmount("amountCents", req.Amount),
		validation.ValidCurrency("currency", req.Currency),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	tx, err := h.svc.CreateHold(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	logging.FromContext(c.Request.Context()).Info("escrow hold created",
		"escrow_id", tx.ID, "booking_id", tx.BookingID, "amount_cents", tx.AmountCents)
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) get(c *gin.Context) {
	tx, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) list(c *gin.Context) {
	partyID := c.GetHeader("X-Party-ID")
	if partyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_party", "message": "X-Party-ID header is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := h.svc.ListByParty(c.Request.Context(), partyID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrows": txs, "count": len(txs)})
}

func (h *Handler) release(c *gin.Context) {
	tx, err := h.svc.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	logging.FromContext(c.Request.Context()).Info("escrow released",
		"escrow_id", tx.ID, "vendor_amount_cents", tx.VendorAmountCents)
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrAlreadySettled):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	case errors.Is(err, payments.ErrDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_declined", "message": err.Error()})
	case errors.Is(err, payments.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "processor_unavailable", "message": err.Error()})
	default:
		logging.FromContext(c.Request.Context()).Error("escrow request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}
