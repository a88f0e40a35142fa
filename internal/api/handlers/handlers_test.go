package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.VisitorFingerprint{},
		&models.SecurityLogEntry{},
		&models.HoneypotConfig{},
		&models.RateLimitPolicy{},
		&models.User{},
	))
	return db
}

// asAdmin simulates the auth middleware for handler-level tests.
func asAdmin(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("role", "admin")
		c.Next()
	}
}

func jsonRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func newVisitorTestService(t *testing.T, db *gorm.DB) *services.VisitorService {
	scorer := services.NewTrustScorer(config.TrustConfig{
		BaseScore:           50,
		BotRatioWeight:      40,
		HoneypotPenalty:     8,
		HoneypotPenaltyCap:  80,
		LinkedAccountBonus:  20,
		BlockHistoryAnchor:  15,
		BlockHistoryWindow:  7 * 24 * time.Hour,
		VelocityWindow:      time.Minute,
		VelocityThreshold:   120,
		VelocityPenalty:     15,
		StaleAfterRequests:  50,
		StaleAfterDuration:  time.Hour,
		UntrustedThreshold:  20,
		SuspiciousThreshold: 40,
		NeutralThreshold:    70,
		TrustedThreshold:    90,
	})
	return services.NewVisitorService(db, scorer)
}
