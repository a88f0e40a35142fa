package services

import (
	"time"

	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/models"
)

// ScoreResult carries the recalculated trust score, its discrete level, and
// the per-factor contributions for dashboards and forensics.
type ScoreResult struct {
	Score   int               `json:"score"`
	Level   models.TrustLevel `json:"level"`
	Factors map[string]int    `json:"factors"`
}

// TrustScorer computes a bounded [0,100] score from a visitor's accumulated
// behavioral factors. All weights come from configuration; the property that
// matters is the contract (bounds, monotonic level mapping), not the exact
// values.
type TrustScorer struct {
	cfg config.TrustConfig
	now func() time.Time
}

// NewTrustScorer builds a scorer with the given tunable weights.
func NewTrustScorer(cfg config.TrustConfig) *TrustScorer {
	return &TrustScorer{cfg: cfg, now: time.Now}
}

// Score recalculates the visitor's trust score. The result is always clamped
// to [0,100] and the level mapping is exhaustive over that range.
func (s *TrustScorer) Score(v *models.VisitorFingerprint) ScoreResult {
	factors := map[string]int{}
	score := s.cfg.BaseScore
	factors["base"] = s.cfg.BaseScore

	if penalty := int(v.BotRatio() * float64(s.cfg.BotRatioWeight)); penalty > 0 {
		score -= penalty
		factors["bot_ratio"] = -penalty
	}

	if v.HoneypotTriggers > 0 {
		// Each trigger compounds suspicion quadratically, capped so a single
		// factor cannot dominate past its configured weight.
		penalty := int(v.HoneypotTriggers*v.HoneypotTriggers) * s.cfg.HoneypotPenalty
		if penalty > s.cfg.HoneypotPenaltyCap {
			penalty = s.cfg.HoneypotPenaltyCap
		}
		score -= penalty
		factors["honeypot_triggers"] = -penalty
	}

	if v.LinkedUserID != nil {
		score += s.cfg.LinkedAccountBonus
		factors["linked_account"] = s.cfg.LinkedAccountBonus
	}

	if penalty := s.velocityPenalty(v); penalty > 0 {
		score -= penalty
		factors["request_velocity"] = -penalty
	}

	if ceiling, anchored := s.blockHistoryCeiling(v); anchored && score > ceiling {
		factors["block_history"] = ceiling - score
		score = ceiling
	}

	score = models.ClampTrustScore(score)

	return ScoreResult{
		Score:   score,
		Level:   s.Level(score),
		Factors: factors,
	}
}

// Level maps a clamped score onto the ordered threshold table. The table is
// validated at config load to be strictly increasing, so the mapping is
// monotonic and exhaustive over [0,100].
func (s *TrustScorer) Level(score int) models.TrustLevel {
	switch {
	case score < s.cfg.UntrustedThreshold:
		return models.TrustLevelUntrusted
	case score < s.cfg.SuspiciousThreshold:
		return models.TrustLevelSuspicious
	case score < s.cfg.NeutralThreshold:
		return models.TrustLevelNeutral
	case score < s.cfg.TrustedThreshold:
		return models.TrustLevelTrusted
	default:
		return models.TrustLevelVerified
	}
}

// IsStale reports whether the stored score should be recalculated: after a
// configured number of requests, after a configured age, or when the visitor
// was never scored. Recalculation itself stays off the hot request path.
func (s *TrustScorer) IsStale(v *models.VisitorFingerprint) bool {
	if v.ScoredAt == nil {
		return true
	}
	if v.TotalRequests-v.RequestsAtScore >= int64(s.cfg.StaleAfterRequests) {
		return true
	}
	return s.now().Sub(*v.ScoredAt) >= s.cfg.StaleAfterDuration
}

// blockHistoryCeiling returns the score ceiling imposed by block history. A
// currently blocked visitor is pinned at the anchor; an unblocked one sees
// the ceiling relax linearly over the configured window.
func (s *TrustScorer) blockHistoryCeiling(v *models.VisitorFingerprint) (int, bool) {
	if v.IsBlocked {
		return s.cfg.BlockHistoryAnchor, true
	}
	if v.BlockReason == "" || v.UnblockedAt == nil {
		return 0, false
	}

	elapsed := s.now().Sub(*v.UnblockedAt)
	if elapsed >= s.cfg.BlockHistoryWindow {
		return 0, false
	}

	headroom := 100 - s.cfg.BlockHistoryAnchor
	relaxed := int(float64(headroom) * float64(elapsed) / float64(s.cfg.BlockHistoryWindow))
	return s.cfg.BlockHistoryAnchor + relaxed, true
}

// velocityPenalty measures request velocity since the last scoring pass,
// normalized to the configured window.
func (s *TrustScorer) velocityPenalty(v *models.VisitorFingerprint) int {
	if v.ScoredAt == nil {
		return 0
	}
	elapsed := s.now().Sub(*v.ScoredAt)
	if elapsed <= 0 {
		return 0
	}

	requests := v.TotalRequests - v.RequestsAtScore
	perWindow := float64(requests) / (float64(elapsed) / float64(s.cfg.VelocityWindow))
	if perWindow > float64(s.cfg.VelocityThreshold) {
		return s.cfg.VelocityPenalty
	}
	return 0
}
