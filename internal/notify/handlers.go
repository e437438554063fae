package notify

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/servimarket/disputes/internal/idgen"
	"github.com/servimarket/disputes/internal/security"
	"github.com/servimarket/disputes/internal/validation"
)

// Handler exposes webhook subscription management. Parties manage only
// their own subscriptions, identified by the X-Party-ID header.
type Handler struct {
	store       Store
	validateURL func(string) error
}

// NewHandler creates a webhook subscription handler. Endpoint URLs are
// screened against SSRF targets.
func NewHandler(store Store) *Handler {
	return &Handler{store: store, validateURL: security.ValidateEndpointURL}
}

// RegisterRoutes mounts webhook routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/webhooks")
	g.POST("", h.create)
	g.GET("", h.list)
	g.DELETE("/:id", validation.IDParamMiddleware("id"), h.delete)
}

type createRequest struct {
	URL    string      `json:"url" binding:"required"`
	Secret string      `json:"secret"`
	Events []EventType `json:"events"`
}

func (h *Handler) create(c *gin.Context) {
	partyID := c.GetHeader("X-Party-ID")
	if partyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_party", "message": "X-Party-ID header is required"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if err := h.validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "message": err.Error()})
		return
	}

	events := req.Events
	if len(events) == 0 {
		events = AllEvents
	}
	for _, et := range events {
		if !knownEvent(et) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event", "message": "unknown event type: " + string(et)})
			return
		}
	}

	sub := &Subscription{
		ID:        idgen.WithPrefix("whk_"),
		PartyID:   partyID,
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) list(c *gin.Context) {
	partyID := c.GetHeader("X-Party-ID")
	if partyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_party", "message": "X-Party-ID header is required"})
		return
	}

	subs, err := h.store.GetByParty(c.Request.Context(), partyID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": subs, "count": len(subs)})
}

func (h *Handler) delete(c *gin.Context) {
	partyID := c.GetHeader("X-Party-ID")
	sub, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}
	if sub.PartyID != partyID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "subscription belongs to another party"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func knownEvent(et EventType) bool {
	for _, known := range AllEvents {
		if et == known {
			return true
		}
	}
	return false
}
