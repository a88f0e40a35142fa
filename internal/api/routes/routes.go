package routes

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/api/handlers"
	"github.com/vigil-labs/vigil/backend/internal/api/middleware"
	"github.com/vigil-labs/vigil/backend/internal/botdetect"
	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/gatekeeper"
	"github.com/vigil-labs/vigil/backend/internal/logger"
	"github.com/vigil-labs/vigil/backend/internal/metrics"
	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/ratelimit"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

// Register wires up API routes, migrations, the decision pipeline, and the
// background sweeps.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := db.AutoMigrate(
		&models.VisitorFingerprint{},
		&models.SecurityLogEntry{},
		&models.HoneypotConfig{},
		&models.RateLimitPolicy{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Services
	notifier := services.NewNotifierService(cfg.NotifyURLs)
	scorer := services.NewTrustScorer(cfg.Trust)
	visitorService := services.NewVisitorService(db, scorer)
	honeypotService := services.NewHoneypotService(db)
	logService := services.NewSecurityLogService(db, notifier)
	authService := services.NewAuthService(db, cfg)

	// Rate limiter: distributed counter store when Redis is configured, the
	// process-local store otherwise. The limiter itself degrades further if
	// the distributed path goes down mid-flight.
	var store ratelimit.CounterStore = ratelimit.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.RedisURL, cfg.StoreTimeout)
		if err != nil {
			logger.Log().WithError(err).Warn("redis unavailable, rate limiter starts on in-memory store")
			notifier.Alert("Counter store unavailable", err.Error())
		} else {
			store = redisStore
		}
	}
	limiter := ratelimit.New(store, loadPolicies(db))

	extractor, err := gatekeeper.NewExtractor(cfg.GeoIPPath)
	if err != nil {
		logger.Log().WithError(err).Warn("GeoIP database unavailable, country enrichment disabled")
		extractor, _ = gatekeeper.NewExtractor("")
	}
	classifier := botdetect.NewClassifier()

	gk := gatekeeper.New(cfg, extractor, classifier, visitorService, limiter, honeypotService, logService, notifier)

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(gk.Middleware())

	authHandler := handlers.NewAuthHandler(authService, logService, visitorService)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(authService))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)
	}

	admin := protected.Group("/")
	admin.Use(middleware.RequireRole("admin"))
	{
		visitorHandler := handlers.NewVisitorHandler(visitorService, logService)
		visitorHandler.RegisterRoutes(admin)

		logHandler := handlers.NewSecurityLogHandler(logService)
		logHandler.RegisterRoutes(admin)

		honeypotHandler := handlers.NewHoneypotHandler(honeypotService)
		honeypotHandler.RegisterRoutes(admin)

		rateLimitHandler := handlers.NewRateLimitHandler(db, limiter)
		rateLimitHandler.RegisterRoutes(admin)
	}

	startSweeps(cfg, visitorService, logService)

	return nil
}

// loadPolicies reads the per-class rate-limit policies, seeding the defaults
// on first boot.
func loadPolicies(db *gorm.DB) []models.RateLimitPolicy {
	var policies []models.RateLimitPolicy
	if err := db.Find(&policies).Error; err != nil {
		logger.Log().WithError(err).Warn("failed to load rate limit policies, using defaults")
		return models.DefaultRateLimitPolicies()
	}
	if len(policies) == 0 {
		policies = models.DefaultRateLimitPolicies()
		for i := range policies {
			if err := db.Create(&policies[i]).Error; err != nil {
				logger.Log().WithError(err).Warn("failed to seed rate limit policy")
			}
		}
	}
	return policies
}

// startSweeps schedules the background jobs that keep scoring and stats off
// the hot request path.
func startSweeps(cfg config.Config, visitors *services.VisitorService, logService *services.SecurityLogService) {
	c := cron.New()

	_, _ = c.AddFunc("@every 5m", func() {
		if n, err := visitors.RecalculateStale(500); err != nil {
			logger.Log().WithError(err).Warn("trust recalculation sweep failed")
		} else if n > 0 {
			logger.Log().WithField("recalculated", n).Debug("trust recalculation sweep done")
		}
	})

	_, _ = c.AddFunc("@every 1m", func() {
		if _, err := logService.RefreshStats(); err != nil {
			logger.Log().WithError(err).Warn("security log stats refresh failed")
		}
	})

	if cfg.LogRetentionDay > 0 {
		retention := time.Duration(cfg.LogRetentionDay) * 24 * time.Hour
		_, _ = c.AddFunc("@daily", func() {
			if n, err := logService.PruneOlderThan(retention); err != nil {
				logger.Log().WithError(err).Warn("security log prune failed")
			} else if n > 0 {
				logger.Log().WithField("pruned", n).Info("security log retention applied")
			}
		})
	}

	c.Start()
}
