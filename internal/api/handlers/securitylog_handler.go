package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

// SecurityLogHandler exposes the audit log for dashboards and forensics.
type SecurityLogHandler struct {
	logService *services.SecurityLogService
}

// NewSecurityLogHandler creates a SecurityLogHandler.
func NewSecurityLogHandler(logService *services.SecurityLogService) *SecurityLogHandler {
	return &SecurityLogHandler{logService: logService}
}

// RegisterRoutes attaches the audit log endpoints to the group.
func (h *SecurityLogHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/security/logs", h.Query)
	g.GET("/security/logs/stats", h.Stats)
}

// Query returns a filtered page of log entries.
func (h *SecurityLogHandler) Query(c *gin.Context) {
	q := services.LogQuery{
		VisitorID: c.Query("visitor_id"),
		Page:      intQuery(c, "page", 1),
		PerPage:   intQuery(c, "per_page", 100),
		SortAsc:   c.Query("order") == "asc",
	}

	if raw := c.Query("event_type"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			et := models.EventType(strings.TrimSpace(part))
			if !validEventType(et) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event type: " + string(et)})
				return
			}
			q.EventTypes = append(q.EventTypes, et)
		}
	}
	if raw := c.Query("severity"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			sev := models.Severity(strings.TrimSpace(part))
			if !validSeverity(sev) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity: " + string(sev)})
				return
			}
			q.Severities = append(q.Severities, sev)
		}
	}
	if v, ok := boolQuery(c, "is_bot"); ok {
		q.IsBot = &v
	}
	if v, ok := boolQuery(c, "honeypot"); ok {
		q.Honeypot = &v
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		uid := uint(id)
		q.UserID = &uid
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp, expect RFC3339"})
			return
		}
		q.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp, expect RFC3339"})
			return
		}
		q.To = &ts
	}

	entries, total, err := h.logService.Query(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query security log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"total":    total,
		"page":     q.Page,
		"per_page": q.PerPage,
	})
}

// Stats returns the pre-aggregated dashboard counters.
func (h *SecurityLogHandler) Stats(c *gin.Context) {
	stats, err := h.logService.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func validEventType(et models.EventType) bool {
	for _, valid := range models.ValidEventTypes {
		if et == valid {
			return true
		}
	}
	return false
}

func validSeverity(sev models.Severity) bool {
	for _, valid := range models.ValidSeverities {
		if sev == valid {
			return true
		}
	}
	return false
}
