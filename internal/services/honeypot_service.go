package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/models"
)

var (
	ErrHoneypotNotFound     = errors.New("honeypot config not found")
	ErrInvalidResponseType  = errors.New("invalid honeypot response type")
	ErrInvalidPathPattern   = errors.New("honeypot path pattern is required")
	ErrInvalidResponseDelay = errors.New("honeypot response delay must be between 0 and 10000 ms")
)

// DecisionContext is everything the honeypot engine needs to decide whether
// a request should receive decoy content.
type DecisionContext struct {
	Path          string
	Method        string
	IsBot         bool
	IsVerifiedBot bool
	Bypassed      bool
	TrustScore    int
	IsBlocked     bool
	VisitorID     string
}

// Decision is the outcome of honeypot evaluation.
type Decision struct {
	ShouldTrigger bool                   `json:"should_trigger"`
	Config        *models.HoneypotConfig `json:"config,omitempty"`
	Reason        string                 `json:"reason"`
}

// HoneypotResponse is a synthesized decoy payload.
type HoneypotResponse struct {
	Status int
	Body   interface{}
}

// HoneypotService evaluates honeypot rules against requests and synthesizes
// plausible fake payloads. Configs are administrator-managed and read-only
// on the request path.
type HoneypotService struct {
	db    *gorm.DB
	sleep func(time.Duration)
}

// NewHoneypotService returns a HoneypotService using the provided DB.
func NewHoneypotService(db *gorm.DB) *HoneypotService {
	return &HoneypotService{db: db, sleep: time.Sleep}
}

// Decide evaluates policy in order: blocked visitors always get the best
// matching decoy (deception instead of an explicit 403), verified
// allowlisted bots never do, and everything else runs through the configured
// rules in priority order, first match wins.
func (s *HoneypotService) Decide(ctx DecisionContext) (Decision, error) {
	configs, err := s.ListEnabled()
	if err != nil {
		return Decision{}, fmt.Errorf("load honeypot configs: %w", err)
	}

	if ctx.IsBlocked {
		cfg := bestPathMatch(configs, ctx)
		if cfg == nil {
			cfg = defaultBlockedConfig()
		}
		return Decision{ShouldTrigger: true, Config: cfg, Reason: "visitor is blocked"}, nil
	}

	if ctx.Bypassed {
		return Decision{Reason: "verified bot bypass"}, nil
	}

	for i := range configs {
		cfg := &configs[i]
		if !matchesRequest(cfg, ctx.Path, ctx.Method) {
			continue
		}
		if cfg.BotOnly && !ctx.IsBot {
			continue
		}
		if ctx.TrustScore > cfg.MaxTrustScore {
			continue
		}
		return Decision{ShouldTrigger: true, Config: cfg, Reason: "matched rule: " + cfg.Name}, nil
	}

	return Decision{Reason: "no matching rule"}, nil
}

// Generate synthesizes the decoy payload for a triggered config, honoring
// its configured response delay so the decoy mimics normal latency.
func (s *HoneypotService) Generate(cfg *models.HoneypotConfig, ctx DecisionContext) HoneypotResponse {
	if cfg.ResponseDelayMs > 0 {
		s.sleep(time.Duration(cfg.ResponseDelayMs) * time.Millisecond)
	}

	switch cfg.ResponseType {
	case models.ResponseFakeListing:
		return HoneypotResponse{Status: 200, Body: fakeListing()}
	case models.ResponseFakeDetail:
		return HoneypotResponse{Status: 200, Body: fakeDetail(ctx.Path)}
	case models.ResponseFakeError:
		return HoneypotResponse{Status: 500, Body: map[string]interface{}{
			"error":   "internal server error",
			"code":    "ERR_UPSTREAM_TIMEOUT",
			"request": uuid.NewString(),
		}}
	default: // models.ResponseEmpty
		return HoneypotResponse{Status: 200, Body: map[string]interface{}{
			"items": []interface{}{},
			"total": 0,
		}}
	}
}

// matchesRequest checks the config's path/method rule. Patterns ending in
// "*" match by prefix; anything else matches exactly.
func matchesRequest(cfg *models.HoneypotConfig, path, method string) bool {
	if cfg.Method != "" && !strings.EqualFold(cfg.Method, method) {
		return false
	}
	pattern := cfg.PathPattern
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return path == pattern
}

// bestPathMatch finds the most specific enabled config matching the path,
// ignoring trigger conditions. Used for blocked visitors where a decoy is
// always served.
func bestPathMatch(configs []models.HoneypotConfig, ctx DecisionContext) *models.HoneypotConfig {
	var best *models.HoneypotConfig
	bestLen := -1
	for i := range configs {
		cfg := &configs[i]
		if !matchesRequest(cfg, ctx.Path, ctx.Method) {
			continue
		}
		if len(cfg.PathPattern) > bestLen {
			best = cfg
			bestLen = len(cfg.PathPattern)
		}
	}
	return best
}

// defaultBlockedConfig is the catch-all decoy used when a blocked visitor
// hits a path with no configured rule.
func defaultBlockedConfig() *models.HoneypotConfig {
	return &models.HoneypotConfig{
		Name:            "blocked-default",
		ResponseType:    models.ResponseFakeListing,
		ResponseDelayMs: 150,
	}
}

func fakeListing() map[string]interface{} {
	items := make([]map[string]interface{}, 0, 5)
	names := []string{"Quarterly Report", "Customer Export", "Inventory Snapshot", "Billing Summary", "Archive Bundle"}
	for i, name := range names {
		items = append(items, map[string]interface{}{
			"id":         uuid.NewString(),
			"name":       name,
			"status":     "active",
			"updated_at": time.Now().Add(-time.Duration(i*7+3) * time.Hour).UTC().Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"items": items,
		"total": len(items),
		"page":  1,
	}
}

func fakeDetail(path string) map[string]interface{} {
	return map[string]interface{}{
		"id":          uuid.NewString(),
		"resource":    path,
		"name":        "Quarterly Report",
		"owner":       "operations",
		"status":      "active",
		"version":     3,
		"created_at":  time.Now().Add(-400 * time.Hour).UTC().Format(time.RFC3339),
		"updated_at":  time.Now().Add(-12 * time.Hour).UTC().Format(time.RFC3339),
		"permissions": []string{"read"},
	}
}

// ListEnabled returns enabled configs ordered by priority (lowest first).
func (s *HoneypotService) ListEnabled() ([]models.HoneypotConfig, error) {
	var configs []models.HoneypotConfig
	if err := s.db.Where("enabled = ?", true).Order("priority asc, id asc").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// List returns all configs for the admin surface.
func (s *HoneypotService) List() ([]models.HoneypotConfig, error) {
	var configs []models.HoneypotConfig
	if err := s.db.Order("priority asc, id asc").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// GetByID retrieves one config.
func (s *HoneypotService) GetByID(id uint) (*models.HoneypotConfig, error) {
	var cfg models.HoneypotConfig
	if err := s.db.First(&cfg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoneypotNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// Create validates and stores a new config.
func (s *HoneypotService) Create(cfg *models.HoneypotConfig) error {
	if err := validateHoneypotConfig(cfg); err != nil {
		return err
	}
	cfg.UUID = uuid.New().String()
	return s.db.Create(cfg).Error
}

// Update validates and saves changes to an existing config.
func (s *HoneypotService) Update(id uint, update *models.HoneypotConfig) (*models.HoneypotConfig, error) {
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := validateHoneypotConfig(update); err != nil {
		return nil, err
	}

	existing.Name = update.Name
	existing.PathPattern = update.PathPattern
	existing.Method = update.Method
	existing.Priority = update.Priority
	existing.Enabled = update.Enabled
	existing.ResponseType = update.ResponseType
	existing.ResponseDelayMs = update.ResponseDelayMs
	existing.BotOnly = update.BotOnly
	existing.MaxTrustScore = update.MaxTrustScore

	if err := s.db.Save(existing).Error; err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a config.
func (s *HoneypotService) Delete(id uint) error {
	res := s.db.Delete(&models.HoneypotConfig{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrHoneypotNotFound
	}
	return nil
}

func validateHoneypotConfig(cfg *models.HoneypotConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("honeypot name is required")
	}
	if strings.TrimSpace(cfg.PathPattern) == "" {
		return ErrInvalidPathPattern
	}
	if cfg.ResponseDelayMs < 0 || cfg.ResponseDelayMs > 10000 {
		return ErrInvalidResponseDelay
	}
	valid := false
	for _, rt := range models.ValidResponseTypes {
		if cfg.ResponseType == rt {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidResponseType
	}
	if cfg.MaxTrustScore < 0 || cfg.MaxTrustScore > 100 {
		return errors.New("max trust score must be within [0,100]")
	}
	return nil
}
