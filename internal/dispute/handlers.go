package dispute

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/servimarket/disputes/internal/escrow"
	"github.com/servimarket/disputes/internal/fees"
	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/validation"
)

// Handler exposes dispute operations over HTTP. Every route requires the
// acting party in the X-Party-ID header.
type Handler struct {
	svc  *Service
	fees *fees.Assessor
}

// NewHandler creates a dispute HTTP handler.
func NewHandler(svc *Service, assessor *fees.Assessor) *Handler {
	return &Handler{svc: svc, fees: assessor}
}

// PartyMiddleware requires the X-Party-ID header and stores it in the context.
func PartyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		party := c.GetHeader("X-Party-ID")
		if party == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				gin.H{"error": "missing_party", "message": "X-Party-ID header is required"})
			return
		}
		c.Set("party", party)
		c.Next()
	}
}

func party(c *gin.Context) string {
	return c.GetString("party")
}

// RegisterRoutes mounts dispute routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/disputes", PartyMiddleware())
	g.POST("", h.open)
	g.GET("", h.list)
	g.GET("/:id", validation.IDParamMiddleware("id"), h.get)
	g.POST("/:id/offers", validation.IDParamMiddleware("id"), h.proposeOffer)
	g.POST("/:id/offers/:offerId/accept", validation.IDParamMiddleware("id"), validation.IDParamMiddleware("offerId"), h.acceptOffer)
	g.POST("/:id/options/:label/respond", validation.IDParamMiddleware("id"), h.respondToOption)
	g.POST("/:id/decision/respond", validation.IDParamMiddleware("id"), h.respondToDecision)
	g.GET("/:id/fees", validation.IDParamMiddleware("id"), h.listFees)
}

func (h *Handler) open(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.OpenedBy = party(c)
	req.Reason = validation.SanitizeString(req.Reason, validation.MaxReasonLength)
	if err := validation.Validate(
		validation.Required("reason", req.Reason),
		validation.ValidID("escrowId", req.EscrowID),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	dc, err := h.svc.Open(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dc)
}

func (h *Handler) get(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.Param("id"), party(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	phase := Phase(c.Query("phase"))

	cases, err := h.svc.ListByParty(c.Request.Context(), party(c), phase, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if status := c.Query("status"); status == "active" || status == "resolved" {
		filtered := cases[:0]
		for _, dc := range cases {
			if dc.Phase.Terminal() == (status == "resolved") {
				filtered = append(filtered, dc)
			}
		}
		cases = filtered
	}
	c.JSON(http.StatusOK, gin.H{"disputes": cases, "count": len(cases)})
}

type offerRequest struct {
	CustomerCents int64  `json:"customerCents"`
	VendorCents   int64  `json:"vendorCents"`
	Message       string `json:"message"`
}

func (h *Handler) proposeOffer(c *gin.Context) {
	var req offerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := validation.Validate(
		validation.NonNegativeAmount("customerCents", req.CustomerCents),
		validation.NonNegativeAmount("vendorCents", req.VendorCents),
		validation.MaxLength("message", req.Message, validation.MaxReasonLength),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	o, err := h.svc.ProposeOffer(c.Request.Context(), c.Param("id"), party(c),
		Split{CustomerCents: req.CustomerCents, VendorCents: req.VendorCents},
		validation.SanitizeString(req.Message, validation.MaxReasonLength))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handler) acceptOffer(c *gin.Context) {
	dc, err := h.svc.AcceptOffer(c.Request.Context(), c.Param("id"), c.Param("offerId"), party(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dc)
}

type respondRequest struct {
	Action string `json:"action" binding:"required"` // "accept" or "reject"
}

func (r respondRequest) accept(c *gin.Context) (bool, bool) {
	switch r.Action {
	case "accept":
		return true, true
	case "reject":
		return false, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "action must be accept or reject"})
	return false, false
}

func (h *Handler) respondToOption(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	accept, ok := req.accept(c)
	if !ok {
		return
	}

	dc, err := h.svc.RespondToOption(c.Request.Context(), c.Param("id"), c.Param("label"), party(c), accept)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dc)
}

func (h *Handler) respondToDecision(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	accept, ok := req.accept(c)
	if !ok {
		return
	}

	dc, err := h.svc.RespondToDecision(c.Request.Context(), c.Param("id"), party(c), accept)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dc)
}

func (h *Handler) listFees(c *gin.Context) {
	// participation check via the case load
	if _, err := h.svc.load(c.Request.Context(), c.Param("id"), party(c)); err != nil {
		h.writeError(c, err)
		return
	}
	charges, err := h.fees.ListByDispute(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fees": charges, "count": len(charges)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, escrow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_participant", "message": err.Error()})
	case errors.Is(err, ErrInvalidSplit):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_split", "message": err.Error()})
	case errors.Is(err, ErrOwnOffer):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "own_offer", "message": err.Error()})
	case errors.Is(err, ErrNoDecision):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_decision", "message": err.Error()})
	case errors.Is(err, ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "already_resolved", "message": err.Error()})
	case errors.Is(err, ErrAlreadyResponded):
		c.JSON(http.StatusConflict, gin.H{"error": "already_responded", "message": err.Error()})
	case errors.Is(err, ErrInvalidPhase), errors.Is(err, escrow.ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_phase", "message": err.Error()})
	case errors.Is(err, ErrConflict), errors.Is(err, escrow.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	default:
		logging.FromContext(c.Request.Context()).Error("dispute request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}
