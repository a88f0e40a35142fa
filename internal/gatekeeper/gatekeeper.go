package gatekeeper

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vigil-labs/vigil/backend/internal/botdetect"
	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/logger"
	"github.com/vigil-labs/vigil/backend/internal/metrics"
	"github.com/vigil-labs/vigil/backend/internal/models"
	"github.com/vigil-labs/vigil/backend/internal/ratelimit"
	"github.com/vigil-labs/vigil/backend/internal/services"
)

// Context keys populated for downstream handlers.
const (
	MetadataKey       = "vigil.metadata"
	ClassificationKey = "vigil.classification"
)

// VisitorRegistry is the slice of the visitor service the gatekeeper needs.
type VisitorRegistry interface {
	GetOrCreate(fingerprint, ip, userAgent string) (*models.VisitorFingerprint, error)
	UpdateStats(fingerprint string, update services.VisitorStatsUpdate) error
	IncrementHoneypotTriggers(fingerprint string, autoBlockAt int) (bool, error)
}

// HoneypotEngine decides on and synthesizes decoy responses.
type HoneypotEngine interface {
	Decide(ctx services.DecisionContext) (services.Decision, error)
	Generate(cfg *models.HoneypotConfig, ctx services.DecisionContext) services.HoneypotResponse
}

// AuditLog records engine decisions without ever aborting the request.
type AuditLog interface {
	LogDetached(entry *models.SecurityLogEntry)
}

// Gatekeeper runs the full decision pipeline for each inbound request:
// extract, classify, register, rate-limit, honeypot, audit. It is the single
// integration point route groups attach to.
type Gatekeeper struct {
	cfg        config.Config
	extractor  *Extractor
	classifier *botdetect.Classifier
	visitors   VisitorRegistry
	limiter    *ratelimit.Limiter
	honeypots  HoneypotEngine
	audit      AuditLog
	notifier   services.OpsNotifier
}

// New wires the pipeline together.
func New(cfg config.Config, extractor *Extractor, classifier *botdetect.Classifier, visitors VisitorRegistry, limiter *ratelimit.Limiter, honeypots HoneypotEngine, audit AuditLog, notifier services.OpsNotifier) *Gatekeeper {
	return &Gatekeeper{
		cfg:        cfg,
		extractor:  extractor,
		classifier: classifier,
		visitors:   visitors,
		limiter:    limiter,
		honeypots:  honeypots,
		audit:      audit,
		notifier:   notifier,
	}
}

// Middleware returns the gin handler enforcing the pipeline on a route
// group. Exactly one audit entry is written per evaluated request, after the
// final decision.
func (g *Gatekeeper) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		md := g.extractor.Extract(c.Request)
		c.Set(MetadataKey, md)
		metrics.IncRequestEvaluated()

		cls := g.classifier.Classify(c.Request.Context(), md.UserAgent, md.IP, c.Request.Header)
		c.Set(ClassificationKey, cls)
		if cls.IsBot {
			metrics.IncBotDetected()
		}

		visitor := g.registerVisitor(md, cls)

		identifier := md.VisitorID
		if identifier == "" && g.cfg.RateLimitByIP {
			identifier = "ip:" + md.IP
		}

		class := EndpointClass(c.Request.Method, c.Request.URL.Path)

		var rl ratelimit.Result
		limited := false
		if !cls.Bypassed && identifier != "" {
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.StoreTimeout)
			rl = g.limiter.Check(ctx, identifier, class)
			cancel()
			g.setRateHeaders(c, rl)
			limited = !rl.Allowed
		}

		decision := g.decideHoneypot(c, md, cls, visitor)

		switch {
		case decision.ShouldTrigger:
			g.serveHoneypot(c, md, cls, visitor, decision)
		case limited:
			metrics.IncRateLimited()
			g.logDecision(md, cls, visitor, models.EventRateLimited, models.SeverityWarning, c, map[string]interface{}{
				"endpoint_class": class,
				"limit":          rl.Limit,
				"retry_after":    rl.RetryAfter.Seconds(),
			})
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rl)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate_limited",
				"message":    "too many requests for this endpoint class",
				"retryAfter": retryAfterSeconds(rl),
			})
		default:
			severity := models.SeverityDebug
			if cls.IsBot {
				severity = models.SeverityInfo
			}
			g.logDecision(md, cls, visitor, models.EventRequest, severity, c, nil)
			c.Next()
		}
	}
}

// registerVisitor performs the lookup-or-create and per-request stat update.
// Registry failures degrade to a nil visitor: the request proceeds with
// neutral assumptions rather than blocking on the store.
func (g *Gatekeeper) registerVisitor(md Metadata, cls botdetect.Classification) *models.VisitorFingerprint {
	if md.VisitorID == "" {
		return nil
	}

	visitor, err := g.visitors.GetOrCreate(md.VisitorID, md.IP, md.UserAgent)
	if err != nil {
		logger.Log().WithError(err).Warn("visitor registry unavailable, proceeding without history")
		return nil
	}

	if err := g.visitors.UpdateStats(md.VisitorID, services.VisitorStatsUpdate{
		IP:        md.IP,
		UserAgent: md.UserAgent,
		IsBot:     cls.IsBot,
	}); err != nil {
		logger.Log().WithError(err).Warn("visitor stat update failed")
	}

	return visitor
}

func (g *Gatekeeper) decideHoneypot(c *gin.Context, md Metadata, cls botdetect.Classification, visitor *models.VisitorFingerprint) services.Decision {
	dctx := services.DecisionContext{
		Path:          c.Request.URL.Path,
		Method:        c.Request.Method,
		IsBot:         cls.IsBot,
		IsVerifiedBot: cls.IsVerifiedBot,
		Bypassed:      cls.Bypassed,
		TrustScore:    50,
		VisitorID:     md.VisitorID,
	}
	if visitor != nil {
		dctx.TrustScore = visitor.TrustScore
		dctx.IsBlocked = visitor.IsBlocked
	}

	decision, err := g.honeypots.Decide(dctx)
	if err != nil {
		// Rule store failure fails open: real content beats an outage-wide decoy.
		logger.Log().WithError(err).Warn("honeypot evaluation failed")
		return services.Decision{Reason: "evaluation failed"}
	}
	return decision
}

func (g *Gatekeeper) serveHoneypot(c *gin.Context, md Metadata, cls botdetect.Classification, visitor *models.VisitorFingerprint, decision services.Decision) {
	metrics.IncHoneypotServed()

	blocked := visitor != nil && visitor.IsBlocked
	if md.VisitorID != "" && !blocked {
		autoBlocked, err := g.visitors.IncrementHoneypotTriggers(md.VisitorID, g.cfg.Trust.AutoBlockTriggers)
		if err != nil {
			logger.Log().WithError(err).Warn("honeypot trigger increment failed")
		} else if autoBlocked && g.notifier != nil {
			g.notifier.Alert("Visitor auto-blocked", "fingerprint "+md.VisitorID+" exceeded the honeypot trigger threshold")
		}
	}

	g.logDecision(md, cls, visitor, models.EventHoneypotServed, models.SeverityWarning, c, map[string]interface{}{
		"reason":        decision.Reason,
		"config":        decision.Config.Name,
		"response_type": string(decision.Config.ResponseType),
	})

	dctx := services.DecisionContext{Path: c.Request.URL.Path, Method: c.Request.Method, VisitorID: md.VisitorID}
	resp := g.honeypots.Generate(decision.Config, dctx)
	c.AbortWithStatusJSON(resp.Status, resp.Body)
}

// logDecision writes the single audit entry for this request. The write is
// synchronous so durability is guaranteed before the response leaves, but it
// never aborts the request on failure.
func (g *Gatekeeper) logDecision(md Metadata, cls botdetect.Classification, visitor *models.VisitorFingerprint, eventType models.EventType, severity models.Severity, c *gin.Context, extra map[string]interface{}) {
	entry := &models.SecurityLogEntry{
		RequestID: md.RequestID,
		IP:        md.IP,
		UserAgent: md.UserAgent,
		Endpoint:  c.Request.URL.Path,
		Method:    c.Request.Method,
		EventType: eventType,
		Severity:  severity,
		IsBot:     cls.IsBot,
		Honeypot:  eventType == models.EventHoneypotServed,
	}
	if md.VisitorID != "" {
		vid := md.VisitorID
		entry.VisitorID = &vid
	}
	if uid, ok := c.Get("userID"); ok {
		if id, ok := uid.(uint); ok {
			entry.UserID = &id
		}
	}

	metadata := map[string]interface{}{
		"classification": cls.Reason,
	}
	if md.Country != "" {
		metadata["country"] = md.Country
	}
	if cls.VerifiedBotName != "" {
		metadata["verified_bot"] = cls.VerifiedBotName
	}
	if visitor != nil {
		metadata["trust_score"] = visitor.TrustScore
		metadata["trust_level"] = string(visitor.TrustLevel)
	}
	for k, v := range extra {
		metadata[k] = v
	}
	entry.SetMetadata(metadata)

	g.audit.LogDetached(entry)
}

func (g *Gatekeeper) setRateHeaders(c *gin.Context, rl ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
}

func retryAfterSeconds(rl ratelimit.Result) int {
	secs := int(rl.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// EndpointClass buckets a request into a rate-limit class. Expensive
// operations (imports, exports, AI endpoints) get their own small buckets,
// auth endpoints are throttled hard, everything else splits read/write.
func EndpointClass(method, path string) string {
	switch {
	case strings.Contains(path, "/auth/"):
		return "auth"
	case strings.Contains(path, "/import") || strings.Contains(path, "/export") ||
		strings.Contains(path, "/ai/") || strings.Contains(path, "/chat"):
		return "expensive"
	case method == http.MethodGet || method == http.MethodHead:
		return "read"
	default:
		return "write"
	}
}
