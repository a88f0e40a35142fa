package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-labs/vigil/backend/internal/models"
)

func newHoneypotService(t *testing.T) *HoneypotService {
	return NewHoneypotService(setupTestDB(t))
}

func seedHoneypot(t *testing.T, s *HoneypotService, cfg models.HoneypotConfig) *models.HoneypotConfig {
	require.NoError(t, s.Create(&cfg))
	return &cfg
}

func TestHoneypotService_Decide_RuleMatching(t *testing.T) {
	service := newHoneypotService(t)
	seedHoneypot(t, service, models.HoneypotConfig{
		Name:          "catalog decoy",
		PathPattern:   "/api/v1/catalog*",
		Method:        "GET",
		Priority:      10,
		Enabled:       true,
		ResponseType:  models.ResponseFakeListing,
		BotOnly:       true,
		MaxTrustScore: 40,
	})

	// Untrusted bot on a matching path triggers.
	decision, err := service.Decide(DecisionContext{
		Path: "/api/v1/catalog/items", Method: "GET", IsBot: true, TrustScore: 25,
	})
	require.NoError(t, err)
	assert.True(t, decision.ShouldTrigger)
	require.NotNil(t, decision.Config)
	assert.Equal(t, "catalog decoy", decision.Config.Name)

	// Same request from a human: BotOnly rules out.
	decision, err = service.Decide(DecisionContext{
		Path: "/api/v1/catalog/items", Method: "GET", IsBot: false, TrustScore: 25,
	})
	require.NoError(t, err)
	assert.False(t, decision.ShouldTrigger)

	// Trusted bot: score above the rule's ceiling.
	decision, err = service.Decide(DecisionContext{
		Path: "/api/v1/catalog/items", Method: "GET", IsBot: true, TrustScore: 80,
	})
	require.NoError(t, err)
	assert.False(t, decision.ShouldTrigger)

	// Non-matching method.
	decision, err = service.Decide(DecisionContext{
		Path: "/api/v1/catalog/items", Method: "POST", IsBot: true, TrustScore: 25,
	})
	require.NoError(t, err)
	assert.False(t, decision.ShouldTrigger)
}

func TestHoneypotService_Decide_BlockedAlwaysDecoyed(t *testing.T) {
	service := newHoneypotService(t)

	// No rules configured at all: blocked visitors still get the default decoy.
	decision, err := service.Decide(DecisionContext{Path: "/api/v1/orders", Method: "GET", IsBlocked: true})
	require.NoError(t, err)
	assert.True(t, decision.ShouldTrigger)
	assert.Equal(t, "visitor is blocked", decision.Reason)
	require.NotNil(t, decision.Config)
	assert.Equal(t, "blocked-default", decision.Config.Name)

	// With a matching rule, the most specific pattern wins even if its
	// trigger conditions would not match.
	seedHoneypot(t, service, models.HoneypotConfig{
		Name: "broad", PathPattern: "/api/*", Enabled: true,
		ResponseType: models.ResponseEmpty, BotOnly: true, MaxTrustScore: 10,
	})
	seedHoneypot(t, service, models.HoneypotConfig{
		Name: "narrow", PathPattern: "/api/v1/orders*", Enabled: true,
		ResponseType: models.ResponseFakeListing, BotOnly: true, MaxTrustScore: 10,
	})

	decision, err = service.Decide(DecisionContext{
		Path: "/api/v1/orders", Method: "GET", IsBlocked: true, TrustScore: 95,
	})
	require.NoError(t, err)
	assert.True(t, decision.ShouldTrigger)
	assert.Equal(t, "narrow", decision.Config.Name)
}

func TestHoneypotService_Decide_VerifiedBypassWins(t *testing.T) {
	service := newHoneypotService(t)
	seedHoneypot(t, service, models.HoneypotConfig{
		Name: "catch-all", PathPattern: "/*", Enabled: true,
		ResponseType: models.ResponseFakeListing, MaxTrustScore: 100,
	})

	decision, err := service.Decide(DecisionContext{
		Path: "/api/v1/catalog", Method: "GET", IsBot: true, Bypassed: true, TrustScore: 0,
	})
	require.NoError(t, err)
	assert.False(t, decision.ShouldTrigger)
	assert.Equal(t, "verified bot bypass", decision.Reason)
}

func TestHoneypotService_Decide_PriorityOrder(t *testing.T) {
	service := newHoneypotService(t)
	seedHoneypot(t, service, models.HoneypotConfig{
		Name: "low priority", PathPattern: "/api/*", Priority: 100, Enabled: true,
		ResponseType: models.ResponseEmpty, MaxTrustScore: 100,
	})
	seedHoneypot(t, service, models.HoneypotConfig{
		Name: "high priority", PathPattern: "/api/*", Priority: 1, Enabled: true,
		ResponseType: models.ResponseFakeError, MaxTrustScore: 100,
	})
	seedHoneypot(t, service, models.HoneypotConfig{
		Name: "disabled", PathPattern: "/api/*", Priority: 0, Enabled: false,
		ResponseType: models.ResponseFakeError, MaxTrustScore: 100,
	})

	decision, err := service.Decide(DecisionContext{Path: "/api/v1/x", Method: "GET", TrustScore: 10})
	require.NoError(t, err)
	assert.True(t, decision.ShouldTrigger)
	assert.Equal(t, "high priority", decision.Config.Name)
}

func TestHoneypotService_Generate(t *testing.T) {
	service := newHoneypotService(t)

	var slept time.Duration
	service.sleep = func(d time.Duration) { slept = d }

	resp := service.Generate(&models.HoneypotConfig{
		ResponseType:    models.ResponseFakeListing,
		ResponseDelayMs: 1500,
	}, DecisionContext{Path: "/api/v1/catalog"})

	assert.Equal(t, 1500*time.Millisecond, slept)
	assert.Equal(t, 200, resp.Status)
	body, ok := resp.Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 5, body["total"])

	resp = service.Generate(&models.HoneypotConfig{ResponseType: models.ResponseFakeDetail}, DecisionContext{Path: "/api/v1/catalog/42"})
	assert.Equal(t, 200, resp.Status)
	detail := resp.Body.(map[string]interface{})
	assert.Equal(t, "/api/v1/catalog/42", detail["resource"])

	resp = service.Generate(&models.HoneypotConfig{ResponseType: models.ResponseFakeError}, DecisionContext{})
	assert.Equal(t, 500, resp.Status)

	resp = service.Generate(&models.HoneypotConfig{ResponseType: models.ResponseEmpty}, DecisionContext{})
	assert.Equal(t, 200, resp.Status)
	empty := resp.Body.(map[string]interface{})
	assert.Equal(t, 0, empty["total"])
}

func TestHoneypotService_CRUD(t *testing.T) {
	service := newHoneypotService(t)

	cfg := seedHoneypot(t, service, models.HoneypotConfig{
		Name: "decoy", PathPattern: "/x", Enabled: true,
		ResponseType: models.ResponseFakeListing, MaxTrustScore: 50,
	})
	assert.NotEmpty(t, cfg.UUID)

	got, err := service.GetByID(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "decoy", got.Name)

	got.MaxTrustScore = 30
	updated, err := service.Update(cfg.ID, got)
	require.NoError(t, err)
	assert.Equal(t, 30, updated.MaxTrustScore)

	all, err := service.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, service.Delete(cfg.ID))
	assert.ErrorIs(t, service.Delete(cfg.ID), ErrHoneypotNotFound)
	_, err = service.GetByID(cfg.ID)
	assert.ErrorIs(t, err, ErrHoneypotNotFound)
}

func TestHoneypotService_Validation(t *testing.T) {
	service := newHoneypotService(t)

	err := service.Create(&models.HoneypotConfig{PathPattern: "/x", ResponseType: models.ResponseEmpty})
	assert.Error(t, err, "missing name")

	err = service.Create(&models.HoneypotConfig{Name: "x", ResponseType: models.ResponseEmpty})
	assert.ErrorIs(t, err, ErrInvalidPathPattern)

	err = service.Create(&models.HoneypotConfig{Name: "x", PathPattern: "/x", ResponseType: "jackpot"})
	assert.ErrorIs(t, err, ErrInvalidResponseType)

	err = service.Create(&models.HoneypotConfig{Name: "x", PathPattern: "/x", ResponseType: models.ResponseEmpty, ResponseDelayMs: 60000})
	assert.ErrorIs(t, err, ErrInvalidResponseDelay)

	err = service.Create(&models.HoneypotConfig{Name: "x", PathPattern: "/x", ResponseType: models.ResponseEmpty, MaxTrustScore: 150})
	assert.Error(t, err)
}
