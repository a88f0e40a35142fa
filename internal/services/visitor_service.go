package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/models"
)

var (
	ErrVisitorNotFound = errors.New("visitor not found")
	ErrInvalidSortKey  = errors.New("invalid sort key")
)

// visitorSortKeys whitelists the sortable columns for the admin listing.
var visitorSortKeys = map[string]string{
	"last_seen":      "last_seen_at",
	"trust_score":    "trust_score",
	"total_requests": "total_requests",
	"bot_requests":   "bot_requests",
}

// VisitorStatsUpdate carries the per-request counter update for a visitor.
type VisitorStatsUpdate struct {
	IP        string
	UserAgent string
	Endpoint  string
	IsBot     bool
}

// VisitorListFilter drives the admin listing query.
type VisitorListFilter struct {
	IsBlocked     *bool
	TrustLevel    string
	HasLinkedUser *bool
	SortBy        string
	SortDesc      bool
	Page          int
	PerPage       int
}

// VisitorService is the durable registry of visitor fingerprints. All
// mutations are last-writer-wins at the row level; counter updates use SQL
// expressions so concurrent handlers never lose increments.
type VisitorService struct {
	db     *gorm.DB
	scorer *TrustScorer
}

// NewVisitorService returns a VisitorService using the provided DB.
func NewVisitorService(db *gorm.DB, scorer *TrustScorer) *VisitorService {
	return &VisitorService{db: db, scorer: scorer}
}

// GetByFingerprint looks up one visitor record.
func (s *VisitorService) GetByFingerprint(fingerprint string) (*models.VisitorFingerprint, error) {
	var v models.VisitorFingerprint
	if err := s.db.Where("fingerprint = ?", fingerprint).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVisitorNotFound
		}
		return nil, err
	}
	return &v, nil
}

// GetOrCreate returns the record for a fingerprint, creating it on first
// sight. The upsert is idempotent: a concurrent create by another handler is
// resolved by re-reading the winner's row.
func (s *VisitorService) GetOrCreate(fingerprint, ip, userAgent string) (*models.VisitorFingerprint, error) {
	v, err := s.GetByFingerprint(fingerprint)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrVisitorNotFound) {
		return nil, err
	}

	now := time.Now()
	fresh := &models.VisitorFingerprint{
		Fingerprint: fingerprint,
		IP:          ip,
		UserAgent:   userAgent,
		TrustScore:  s.scorer.cfg.BaseScore,
		TrustLevel:  s.scorer.Level(s.scorer.cfg.BaseScore),
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if err := s.db.Create(fresh).Error; err != nil {
		// Lost a create race; the other writer's row is authoritative.
		if existing, lookupErr := s.GetByFingerprint(fingerprint); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create visitor: %w", err)
	}
	return fresh, nil
}

// UpdateStats increments the per-request counters and refreshes last-seen
// metadata. Bot requests additionally bump the bot counter.
func (s *VisitorService) UpdateStats(fingerprint string, update VisitorStatsUpdate) error {
	columns := map[string]interface{}{
		"total_requests": gorm.Expr("total_requests + 1"),
		"last_seen_at":   time.Now(),
	}
	if update.IsBot {
		columns["bot_requests"] = gorm.Expr("bot_requests + 1")
	}
	if update.IP != "" {
		columns["ip"] = update.IP
	}
	if update.UserAgent != "" {
		columns["user_agent"] = update.UserAgent
	}

	res := s.db.Model(&models.VisitorFingerprint{}).
		Where("fingerprint = ?", fingerprint).
		UpdateColumns(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVisitorNotFound
	}
	return nil
}

// IncrementHoneypotTriggers bumps the trigger counter and reports whether
// the visitor crossed the auto-block threshold (0 disables auto-blocking).
func (s *VisitorService) IncrementHoneypotTriggers(fingerprint string, autoBlockAt int) (autoBlocked bool, err error) {
	res := s.db.Model(&models.VisitorFingerprint{}).
		Where("fingerprint = ?", fingerprint).
		UpdateColumn("honeypot_triggers", gorm.Expr("honeypot_triggers + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrVisitorNotFound
	}

	if autoBlockAt <= 0 {
		return false, nil
	}

	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return false, err
	}
	if v.IsBlocked || v.HoneypotTriggers < int64(autoBlockAt) {
		return false, nil
	}

	if err := s.Block(fingerprint, "honeypot_threshold", nil); err != nil {
		return false, err
	}
	return true, nil
}

// Block marks a visitor blocked. Blocking an already-blocked visitor
// refreshes the reason but is otherwise a no-op success.
func (s *VisitorService) Block(fingerprint, reason string, adminID *uint) error {
	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return err
	}

	now := time.Now()
	v.IsBlocked = true
	v.BlockReason = reason
	v.BlockedAt = &now
	v.BlockedBy = adminID
	return s.db.Save(v).Error
}

// Unblock clears the block flag. Unblocking an already-unblocked visitor is
// a no-op success; the block reason is retained so the trust scorer can
// anchor against recent history.
func (s *VisitorService) Unblock(fingerprint string) error {
	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return err
	}
	if !v.IsBlocked {
		return nil
	}

	now := time.Now()
	v.IsBlocked = false
	v.UnblockedAt = &now
	return s.db.Save(v).Error
}

// AddTags unions the provided tags into the visitor's tag set.
func (s *VisitorService) AddTags(fingerprint string, tags []string) (*models.VisitorFingerprint, error) {
	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}

	existing := v.TagList()
	seen := make(map[string]bool, len(existing))
	for _, tag := range existing {
		seen[tag] = true
	}
	for _, tag := range tags {
		if tag != "" && !seen[tag] {
			existing = append(existing, tag)
			seen[tag] = true
		}
	}
	v.SetTags(existing)

	if err := s.db.Save(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// AddNote appends a note to the visitor's append-only note log.
func (s *VisitorService) AddNote(fingerprint, text string, adminID *uint) (*models.VisitorFingerprint, error) {
	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}

	note := models.VisitorNote{Text: text, CreatedAt: time.Now()}
	if adminID != nil {
		note.AdminID = *adminID
	}
	v.AppendNote(note)

	if err := s.db.Save(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// LinkUser associates an authenticated account with the fingerprint.
func (s *VisitorService) LinkUser(fingerprint string, userID uint) error {
	res := s.db.Model(&models.VisitorFingerprint{}).
		Where("fingerprint = ?", fingerprint).
		UpdateColumn("linked_user_id", userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVisitorNotFound
	}
	return nil
}

// Recalculate runs the trust scorer and persists the result.
func (s *VisitorService) Recalculate(fingerprint string) (*models.VisitorFingerprint, ScoreResult, error) {
	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return nil, ScoreResult{}, err
	}

	result := s.scorer.Score(v)
	now := time.Now()
	v.TrustScore = result.Score
	v.TrustLevel = result.Level
	v.ScoredAt = &now
	v.RequestsAtScore = v.TotalRequests

	if err := s.db.Save(v).Error; err != nil {
		return nil, ScoreResult{}, err
	}
	return v, result, nil
}

// RecalculateStale sweeps visitors whose scores have gone stale. Used by the
// cron sweep so scoring stays off the hot request path.
func (s *VisitorService) RecalculateStale(limit int) (int, error) {
	var visitors []models.VisitorFingerprint
	if err := s.db.Order("last_seen_at desc").Limit(limit).Find(&visitors).Error; err != nil {
		return 0, err
	}

	recalculated := 0
	for i := range visitors {
		if !s.scorer.IsStale(&visitors[i]) {
			continue
		}
		if _, _, err := s.Recalculate(visitors[i].Fingerprint); err != nil {
			return recalculated, err
		}
		recalculated++
	}
	return recalculated, nil
}

// Anonymize strips PII from a visitor record while keeping counters for
// audit continuity. Records are never physically deleted.
func (s *VisitorService) Anonymize(fingerprint string) error {
	v, err := s.GetByFingerprint(fingerprint)
	if err != nil {
		return err
	}
	v.Anonymize()
	return s.db.Save(v).Error
}

// List returns a filtered, paginated page of visitors plus the total count.
func (s *VisitorService) List(filter VisitorListFilter) ([]models.VisitorFingerprint, int64, error) {
	q := s.db.Model(&models.VisitorFingerprint{})

	if filter.IsBlocked != nil {
		q = q.Where("is_blocked = ?", *filter.IsBlocked)
	}
	if filter.TrustLevel != "" {
		q = q.Where("trust_level = ?", filter.TrustLevel)
	}
	if filter.HasLinkedUser != nil {
		if *filter.HasLinkedUser {
			q = q.Where("linked_user_id IS NOT NULL")
		} else {
			q = q.Where("linked_user_id IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "last_seen"
	}
	column, ok := visitorSortKeys[sortBy]
	if !ok {
		return nil, 0, ErrInvalidSortKey
	}
	order := column + " asc"
	if filter.SortDesc {
		order = column + " desc"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 200 {
		perPage = 200
	}

	var visitors []models.VisitorFingerprint
	if err := q.Order(order).Offset((page - 1) * perPage).Limit(perPage).Find(&visitors).Error; err != nil {
		return nil, 0, err
	}
	return visitors, total, nil
}
