package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/vigil-labs/vigil/backend/internal/gatekeeper"
	"github.com/vigil-labs/vigil/backend/internal/logger"
	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

// AuthHandler serves admin session endpoints. Every attempt lands in the
// security log so credential stuffing is visible alongside the rest of the
// abuse signal.
type AuthHandler struct {
	authService *services.AuthService
	logService  *services.SecurityLogService
	visitors    *services.VisitorService
}

// NewAuthHandler creates an AuthHandler. visitors may be nil; when set, a
// successful login links the presented fingerprint to the account.
func NewAuthHandler(authService *services.AuthService, logService *services.SecurityLogService, visitors *services.VisitorService) *AuthHandler {
	return &AuthHandler{authService: authService, logService: logService, visitors: visitors}
}

// isProduction checks if we're running in production mode
func isProduction() bool {
	env := os.Getenv("VIGIL_ENV")
	return env == "production" || env == "prod"
}

// setSecureCookie sets an auth cookie with security best practices
// - HttpOnly: prevents JavaScript access (XSS protection)
// - Secure: only sent over HTTPS (in production)
// - SameSite=Strict: prevents CSRF attacks
func setSecureCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, maxAge, "/", "", isProduction(), true)
}

func clearSecureCookie(c *gin.Context, name string) {
	setSecureCookie(c, name, "", -1)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		h.logAuthEvent(c, models.EventAuthFailure, models.SeverityWarning, req.Email, nil)
		switch {
		case errors.Is(err, services.ErrAccountLocked):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account temporarily locked"})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		}
		return
	}

	h.logAuthEvent(c, models.EventAuthSuccess, models.SeverityInfo, req.Email, &user.ID)
	h.linkVisitor(c, user.ID)

	// Set secure cookie (HttpOnly, Secure in prod, SameSite=Strict)
	setSecureCookie(c, "auth_token", token, 3600*24)

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	clearSecureCookie(c, "auth_token")
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := c.Get("userID")
	role, _ := c.Get("role")

	u, err := h.authService.GetUserByID(userID.(uint))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"role":    role,
		"name":    u.Name,
		"email":   u.Email,
	})
}

// linkVisitor associates the requesting fingerprint, if any, with the
// account that just authenticated. The linkage feeds the trust scorer; a
// missing or unknown fingerprint is not an error.
func (h *AuthHandler) linkVisitor(c *gin.Context, userID uint) {
	if h.visitors == nil {
		return
	}
	fingerprint := c.GetHeader(gatekeeper.VisitorIDHeader)
	if fingerprint == "" {
		fingerprint, _ = c.Cookie(gatekeeper.VisitorIDCookie)
	}
	if fingerprint == "" {
		return
	}
	if err := h.visitors.LinkUser(fingerprint, userID); err != nil && !errors.Is(err, services.ErrVisitorNotFound) {
		logger.Log().WithError(err).WithField("visitor_id", fingerprint).Warn("failed to link visitor to account")
	}
}

func (h *AuthHandler) logAuthEvent(c *gin.Context, eventType models.EventType, severity models.Severity, email string, userID *uint) {
	if h.logService == nil {
		return
	}
	entry := &models.SecurityLogEntry{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Endpoint:  c.Request.URL.Path,
		Method:    c.Request.Method,
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
	}
	entry.SetMetadata(map[string]interface{}{"email": email})
	h.logService.LogDetached(entry)
}
