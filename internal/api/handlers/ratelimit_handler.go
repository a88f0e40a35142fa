package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/ratelimit"
)

// RateLimitHandler lets administrators inspect and tune per-class policies.
// Updates are persisted and installed on the live limiter in one step.
type RateLimitHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
}

// NewRateLimitHandler creates a RateLimitHandler.
func NewRateLimitHandler(db *gorm.DB, limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{db: db, limiter: limiter}
}

// RegisterRoutes attaches rate-limit policy endpoints to the group.
func (h *RateLimitHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/ratelimit/policies", h.List)
	g.PUT("/ratelimit/policies", h.Update)
}

func (h *RateLimitHandler) List(c *gin.Context) {
	policies := h.limiter.Policies()
	sort.Slice(policies, func(i, j int) bool { return policies[i].Class < policies[j].Class })
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

// PolicyUpdateRequest tunes one endpoint class.
type PolicyUpdateRequest struct {
	Class      string `json:"class" binding:"required"`
	MaxTokens  int    `json:"max_tokens" binding:"required"`
	RefillRate int    `json:"refill_rate" binding:"required"`
	WindowMs   int64  `json:"window_ms" binding:"required"`
	FailClosed bool   `json:"fail_closed"`
}

func (h *RateLimitHandler) Update(c *gin.Context) {
	var req PolicyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxTokens < 1 || req.RefillRate < 1 || req.WindowMs < int64(time.Second.Milliseconds()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_tokens and refill_rate must be positive, window_ms at least 1000"})
		return
	}

	policy := models.RateLimitPolicy{
		Class:      req.Class,
		MaxTokens:  req.MaxTokens,
		RefillRate: req.RefillRate,
		WindowMs:   req.WindowMs,
		FailClosed: req.FailClosed,
	}

	var existing models.RateLimitPolicy
	err := h.db.Where("class = ?", req.Class).First(&existing).Error
	switch {
	case err == nil:
		existing.MaxTokens = policy.MaxTokens
		existing.RefillRate = policy.RefillRate
		existing.WindowMs = policy.WindowMs
		existing.FailClosed = policy.FailClosed
		err = h.db.Save(&existing).Error
		policy = existing
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = h.db.Create(&policy).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save policy"})
		return
	}

	h.limiter.SetPolicy(policy)
	c.JSON(http.StatusOK, policy)
}
