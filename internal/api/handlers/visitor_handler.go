package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

// VisitorHandler exposes the admin surface over the visitor registry.
type VisitorHandler struct {
	visitors   *services.VisitorService
	logService *services.SecurityLogService
}

// NewVisitorHandler creates a VisitorHandler.
func NewVisitorHandler(visitors *services.VisitorService, logService *services.SecurityLogService) *VisitorHandler {
	return &VisitorHandler{visitors: visitors, logService: logService}
}

// RegisterRoutes attaches visitor admin endpoints to the group.
func (h *VisitorHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/visitors", h.List)
	g.PATCH("/visitors", h.Patch)
}

// List returns a filtered, paginated visitor listing.
func (h *VisitorHandler) List(c *gin.Context) {
	filter := services.VisitorListFilter{
		TrustLevel: c.Query("trust_level"),
		SortBy:     c.Query("sort_by"),
		SortDesc:   c.DefaultQuery("order", "desc") == "desc",
		Page:       intQuery(c, "page", 1),
		PerPage:    intQuery(c, "per_page", 50),
	}
	if v, ok := boolQuery(c, "is_blocked"); ok {
		filter.IsBlocked = &v
	}
	if v, ok := boolQuery(c, "has_linked_user"); ok {
		filter.HasLinkedUser = &v
	}

	visitors, total, err := h.visitors.List(filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSortKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sort key"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list visitors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visitors": visitors,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	})
}

// PatchRequest is the admin mutation envelope for a visitor record.
type PatchRequest struct {
	VisitorID string   `json:"visitor_id"`
	Action    string   `json:"action"`
	Reason    string   `json:"reason,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// Patch applies one admin action to a visitor: block, unblock, add_tags,
// add_note, recalculate_trust, or anonymize.
func (h *VisitorHandler) Patch(c *gin.Context) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.VisitorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visitor_id is required"})
		return
	}
	if req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	adminID := adminIDFrom(c)

	var (
		visitor *models.VisitorFingerprint
		err     error
	)

	switch req.Action {
	case "block":
		reason := req.Reason
		if reason == "" {
			reason = "manual"
		}
		if err = h.visitors.Block(req.VisitorID, reason, adminID); err == nil {
			visitor, err = h.visitors.GetByFingerprint(req.VisitorID)
			h.logAdminAction(c, models.EventVisitorBlocked, req, adminID)
		}
	case "unblock":
		if err = h.visitors.Unblock(req.VisitorID); err == nil {
			visitor, err = h.visitors.GetByFingerprint(req.VisitorID)
			h.logAdminAction(c, models.EventVisitorUnblocked, req, adminID)
		}
	case "add_tags":
		if len(req.Tags) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tags are required for add_tags"})
			return
		}
		visitor, err = h.visitors.AddTags(req.VisitorID, req.Tags)
	case "add_note":
		if strings.TrimSpace(req.Note) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "note is required for add_note"})
			return
		}
		visitor, err = h.visitors.AddNote(req.VisitorID, req.Note, adminID)
	case "recalculate_trust":
		visitor, _, err = h.visitors.Recalculate(req.VisitorID)
	case "anonymize":
		if err = h.visitors.Anonymize(req.VisitorID); err == nil {
			visitor, err = h.visitors.GetByFingerprint(req.VisitorID)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	if err != nil {
		if errors.Is(err, services.ErrVisitorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "visitor not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "visitor update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visitor": gin.H{
			"fingerprint":       visitor.Fingerprint,
			"is_blocked":        visitor.IsBlocked,
			"block_reason":      visitor.BlockReason,
			"trust_score":       visitor.TrustScore,
			"trust_level":       visitor.TrustLevel,
			"tags":              visitor.TagList(),
			"notes":             visitor.NoteList(),
			"total_requests":    visitor.TotalRequests,
			"bot_requests":      visitor.BotRequests,
			"honeypot_triggers": visitor.HoneypotTriggers,
		},
	})
}

func (h *VisitorHandler) logAdminAction(c *gin.Context, eventType models.EventType, req PatchRequest, adminID *uint) {
	vid := req.VisitorID
	entry := &models.SecurityLogEntry{
		VisitorID: &vid,
		UserID:    adminID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Endpoint:  c.Request.URL.Path,
		Method:    c.Request.Method,
		EventType: eventType,
		Severity:  models.SeverityInfo,
	}
	entry.SetMetadata(map[string]interface{}{
		"action": req.Action,
		"reason": req.Reason,
	})
	h.logService.LogDetached(entry)
}

func adminIDFrom(c *gin.Context) *uint {
	if v, ok := c.Get("userID"); ok {
		if id, ok := v.(uint); ok {
			return &id
		}
	}
	return nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

func boolQuery(c *gin.Context, key string) (bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
