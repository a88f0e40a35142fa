package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

// HoneypotHandler manages the administrator-facing honeypot rule CRUD.
type HoneypotHandler struct {
	honeypots *services.HoneypotService
}

// NewHoneypotHandler creates a HoneypotHandler.
func NewHoneypotHandler(honeypots *services.HoneypotService) *HoneypotHandler {
	return &HoneypotHandler{honeypots: honeypots}
}

// RegisterRoutes attaches honeypot config endpoints to the group.
func (h *HoneypotHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/honeypots", h.List)
	g.POST("/honeypots", h.Create)
	g.PUT("/honeypots/:id", h.Update)
	g.DELETE("/honeypots/:id", h.Delete)
}

func (h *HoneypotHandler) List(c *gin.Context) {
	configs, err := h.honeypots.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list honeypot configs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"honeypots": configs})
}

func (h *HoneypotHandler) Create(c *gin.Context) {
	var cfg models.HoneypotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.honeypots.Create(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *HoneypotHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid honeypot id"})
		return
	}

	var update models.HoneypotConfig
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.honeypots.Update(uint(id), &update)
	if err != nil {
		if errors.Is(err, services.ErrHoneypotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "honeypot config not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *HoneypotHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid honeypot id"})
		return
	}

	if err := h.honeypots.Delete(uint(id)); err != nil {
		if errors.Is(err, services.ErrHoneypotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "honeypot config not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete honeypot config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
