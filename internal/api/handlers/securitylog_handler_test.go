package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

func setupLogRouter(t *testing.T) (*gin.Engine, *services.SecurityLogService) {
	gin.SetMode(gin.TestMode)
	logService := services.NewSecurityLogService(setupTestDB(t), nil)

	router := gin.New()
	router.Use(asAdmin(1))
	NewSecurityLogHandler(logService).RegisterRoutes(router.Group("/"))
	return router, logService
}

func TestSecurityLogHandler_Query(t *testing.T) {
	router, logService := setupLogRouter(t)

	visitorID := "fp-1"
	seed := []models.SecurityLogEntry{
		{EventType: models.EventRequest, Severity: models.SeverityDebug},
		{EventType: models.EventHoneypotServed, Severity: models.SeverityWarning, Honeypot: true, IsBot: true, VisitorID: &visitorID},
		{EventType: models.EventRateLimited, Severity: models.SeverityWarning, VisitorID: &visitorID},
	}
	for i := range seed {
		_, err := logService.Log(&seed[i])
		require.NoError(t, err)
	}

	w := jsonRequest(t, router, "GET", "/security/logs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(3), body["total"])

	w = jsonRequest(t, router, "GET", "/security/logs?event_type=honeypot_served", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])

	w = jsonRequest(t, router, "GET", "/security/logs?event_type=honeypot_served,rate_limited", nil)
	body = decodeBody(t, w)
	assert.Equal(t, float64(2), body["total"])

	w = jsonRequest(t, router, "GET", "/security/logs?visitor_id=fp-1&severity=warning", nil)
	body = decodeBody(t, w)
	assert.Equal(t, float64(2), body["total"])
}

func TestSecurityLogHandler_Query_Validation(t *testing.T) {
	router, _ := setupLogRouter(t)

	w := jsonRequest(t, router, "GET", "/security/logs?event_type=teleport", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid event type")

	w = jsonRequest(t, router, "GET", "/security/logs?severity=catastrophic", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = jsonRequest(t, router, "GET", "/security/logs?user_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = jsonRequest(t, router, "GET", "/security/logs?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "RFC3339")
}

func TestSecurityLogHandler_Stats(t *testing.T) {
	router, logService := setupLogRouter(t)

	_, err := logService.Log(&models.SecurityLogEntry{EventType: models.EventHoneypotServed, Honeypot: true, IsBot: true})
	require.NoError(t, err)

	w := jsonRequest(t, router, "GET", "/security/logs/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["honeypots_served"])
}
