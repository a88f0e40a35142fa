package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TrustConfig holds the tunable weights and thresholds used by the trust
// scorer. Defaults are deliberately conservative; operators can override
// any of them via environment variables without a rebuild.
type TrustConfig struct {
	BaseScore           int           // starting score for an unseen visitor
	BotRatioWeight      int           // max penalty applied at 100% bot traffic
	HoneypotPenalty     int           // per-trigger penalty, compounds quadratically
	HoneypotPenaltyCap  int           // upper bound on the compound honeypot penalty
	LinkedAccountBonus  int           // positive offset for an authenticated linkage
	BlockHistoryAnchor  int           // score ceiling while block history is fresh
	BlockHistoryWindow  time.Duration // how long past blocks keep anchoring the score
	VelocityWindow      time.Duration // window for request-velocity measurement
	VelocityThreshold   int           // requests per window considered abusive
	VelocityPenalty     int           // penalty once the threshold is exceeded
	StaleAfterRequests  int           // recalculate after this many requests
	StaleAfterDuration  time.Duration // or after this much time
	AutoBlockTriggers   int           // honeypot triggers before automatic block (0 = off)
	UntrustedThreshold  int
	SuspiciousThreshold int
	NeutralThreshold    int
	TrustedThreshold    int
}

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment     string
	HTTPPort        string
	DatabasePath    string
	FrontendDir     string
	RedisURL        string // empty disables the distributed counter store
	GeoIPPath       string // path to a GeoLite2 country database, optional
	JWTSecret       string
	NotifyURLs      []string // shoutrrr URLs for operational alerts
	StoreTimeout    time.Duration
	Trust           TrustConfig
	TrustedProxies  []string
	RateLimitByIP   bool // key unidentified visitors by client IP
	LogRetentionDay int
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:     getEnv("VIGIL_ENV", "development"),
		HTTPPort:        getEnv("VIGIL_HTTP_PORT", "8080"),
		DatabasePath:    getEnv("VIGIL_DB_PATH", filepath.Join("data", "vigil.db")),
		FrontendDir:     getEnv("VIGIL_FRONTEND_DIR", filepath.Clean(filepath.Join("..", "frontend", "dist"))),
		RedisURL:        getEnv("VIGIL_REDIS_URL", ""),
		GeoIPPath:       getEnv("VIGIL_GEOIP_PATH", ""),
		JWTSecret:       getEnv("VIGIL_JWT_SECRET", "dev-secret-change-in-production"),
		NotifyURLs:      splitList(getEnv("VIGIL_NOTIFY_URLS", "")),
		StoreTimeout:    getDuration("VIGIL_STORE_TIMEOUT", 250*time.Millisecond),
		TrustedProxies:  splitList(getEnv("VIGIL_TRUSTED_PROXIES", "")),
		RateLimitByIP:   getBool("VIGIL_RATELIMIT_BY_IP", true),
		LogRetentionDay: getInt("VIGIL_LOG_RETENTION_DAYS", 90),
		Trust: TrustConfig{
			BaseScore:           getInt("VIGIL_TRUST_BASE", 50),
			BotRatioWeight:      getInt("VIGIL_TRUST_BOT_WEIGHT", 40),
			HoneypotPenalty:     getInt("VIGIL_TRUST_HONEYPOT_PENALTY", 8),
			HoneypotPenaltyCap:  getInt("VIGIL_TRUST_HONEYPOT_CAP", 80),
			LinkedAccountBonus:  getInt("VIGIL_TRUST_LINKED_BONUS", 20),
			BlockHistoryAnchor:  getInt("VIGIL_TRUST_BLOCK_ANCHOR", 15),
			BlockHistoryWindow:  getDuration("VIGIL_TRUST_BLOCK_WINDOW", 7*24*time.Hour),
			VelocityWindow:      getDuration("VIGIL_TRUST_VELOCITY_WINDOW", time.Minute),
			VelocityThreshold:   getInt("VIGIL_TRUST_VELOCITY_THRESHOLD", 120),
			VelocityPenalty:     getInt("VIGIL_TRUST_VELOCITY_PENALTY", 15),
			StaleAfterRequests:  getInt("VIGIL_TRUST_STALE_REQUESTS", 50),
			StaleAfterDuration:  getDuration("VIGIL_TRUST_STALE_AFTER", time.Hour),
			AutoBlockTriggers:   getInt("VIGIL_AUTOBLOCK_TRIGGERS", 10),
			UntrustedThreshold:  getInt("VIGIL_TRUST_LEVEL_UNTRUSTED", 20),
			SuspiciousThreshold: getInt("VIGIL_TRUST_LEVEL_SUSPICIOUS", 40),
			NeutralThreshold:    getInt("VIGIL_TRUST_LEVEL_NEUTRAL", 70),
			TrustedThreshold:    getInt("VIGIL_TRUST_LEVEL_TRUSTED", 90),
		},
	}

	if err := cfg.Trust.Validate(); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// Validate ensures the level thresholds are monotonic and inside [0,100] so
// the score-to-level mapping stays exhaustive.
func (t TrustConfig) Validate() error {
	th := []int{t.UntrustedThreshold, t.SuspiciousThreshold, t.NeutralThreshold, t.TrustedThreshold}
	prev := 0
	for _, v := range th {
		if v <= prev || v > 100 {
			return fmt.Errorf("trust level thresholds must be strictly increasing within (0,100], got %v", th)
		}
		prev = v
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
