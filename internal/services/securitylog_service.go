package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/logger"
	"github.com/vigil-labs/vigil/backend/internal/metrics"
	"github.com/vigil-labs/vigil/backend/internal/models"
)

// ErrNilLogEntry is returned when a caller tries to log a nil entry.
var ErrNilLogEntry = errors.New("nil security log entry")

// OpsNotifier receives operational alerts when the audit pipeline itself is
// failing. Implemented by NotifierService; a nil notifier disables alerts.
type OpsNotifier interface {
	Alert(title, message string)
}

// LogQuery filters the audit log for dashboards and forensics.
type LogQuery struct {
	EventTypes []models.EventType
	Severities []models.Severity
	IsBot      *bool
	Honeypot   *bool
	VisitorID  string
	UserID     *uint
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
	SortAsc    bool
}

// LogStats is the pre-aggregated dashboard view of the audit log.
type LogStats struct {
	Total       int64            `json:"total"`
	Last24h     int64            `json:"last_24h"`
	Last7d      int64            `json:"last_7d"`
	BotRequests int64            `json:"bot_requests"`
	Honeypots   int64            `json:"honeypots_served"`
	RateLimited int64            `json:"rate_limited"`
	BySeverity  map[string]int64 `json:"by_severity"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// SecurityLogService owns the append-only audit log. Entries are written
// once and never updated or deleted by the engine.
type SecurityLogService struct {
	db       *gorm.DB
	notifier OpsNotifier

	mu    sync.RWMutex
	stats *LogStats
}

// NewSecurityLogService returns a SecurityLogService using the provided DB.
func NewSecurityLogService(db *gorm.DB, notifier OpsNotifier) *SecurityLogService {
	return &SecurityLogService{db: db, notifier: notifier}
}

// Log durably writes one entry and returns its UUID. The write completes
// before returning so callers that need audit durability get it; callers on
// the hot path detach via goroutine and rely on LogDetached.
func (s *SecurityLogService) Log(entry *models.SecurityLogEntry) (string, error) {
	if entry == nil {
		return "", ErrNilLogEntry
	}
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}

	if err := s.db.Create(entry).Error; err != nil {
		return "", err
	}
	return entry.UUID, nil
}

// LogDetached writes an entry and swallows the error after reporting it:
// audit failures must never abort the protected request, but they do emit a
// metric, a server log line, and an ops alert.
func (s *SecurityLogService) LogDetached(entry *models.SecurityLogEntry) {
	if _, err := s.Log(entry); err != nil {
		metrics.IncLogFailure()
		logger.Log().WithError(err).Error("security log write failed")
		if s.notifier != nil {
			s.notifier.Alert("Security log write failed", err.Error())
		}
	}
}

// Query returns a filtered page of entries plus the total match count.
func (s *SecurityLogService) Query(q LogQuery) ([]models.SecurityLogEntry, int64, error) {
	query := s.db.Model(&models.SecurityLogEntry{})

	if len(q.EventTypes) > 0 {
		query = query.Where("event_type IN ?", q.EventTypes)
	}
	if len(q.Severities) > 0 {
		query = query.Where("severity IN ?", q.Severities)
	}
	if q.IsBot != nil {
		query = query.Where("is_bot = ?", *q.IsBot)
	}
	if q.Honeypot != nil {
		query = query.Where("honeypot = ?", *q.Honeypot)
	}
	if q.VisitorID != "" {
		query = query.Where("visitor_id = ?", q.VisitorID)
	}
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.From != nil {
		query = query.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("created_at <= ?", *q.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at desc"
	if q.SortAsc {
		order = "created_at asc"
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 || perPage > 500 {
		perPage = 100
	}

	var entries []models.SecurityLogEntry
	if err := query.Order(order).Offset((page - 1) * perPage).Limit(perPage).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Stats returns the pre-aggregated dashboard counters, computing them on
// first use. RefreshStats keeps them current via the cron sweep.
func (s *SecurityLogService) Stats() (*LogStats, error) {
	s.mu.RLock()
	cached := s.stats
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return s.RefreshStats()
}

// RefreshStats recomputes the aggregate view.
func (s *SecurityLogService) RefreshStats() (*LogStats, error) {
	now := time.Now()
	stats := &LogStats{
		BySeverity:  make(map[string]int64),
		RefreshedAt: now,
	}

	model := func() *gorm.DB { return s.db.Model(&models.SecurityLogEntry{}) }

	if err := model().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := model().Where("created_at >= ?", now.Add(-24*time.Hour)).Count(&stats.Last24h).Error; err != nil {
		return nil, err
	}
	if err := model().Where("created_at >= ?", now.Add(-7*24*time.Hour)).Count(&stats.Last7d).Error; err != nil {
		return nil, err
	}
	if err := model().Where("is_bot = ?", true).Count(&stats.BotRequests).Error; err != nil {
		return nil, err
	}
	if err := model().Where("event_type = ?", models.EventHoneypotServed).Count(&stats.Honeypots).Error; err != nil {
		return nil, err
	}
	if err := model().Where("event_type = ?", models.EventRateLimited).Count(&stats.RateLimited).Error; err != nil {
		return nil, err
	}

	type severityCount struct {
		Severity string
		Count    int64
	}
	var rows []severityCount
	if err := model().Select("severity, count(*) as count").Group("severity").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.BySeverity[row.Severity] = row.Count
	}

	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
	return stats, nil
}

// PruneOlderThan deletes entries past the retention horizon. Retention is an
// operator policy applied by the cron sweep, not an engine behavior.
func (s *SecurityLogService) PruneOlderThan(age time.Duration) (int64, error) {
	res := s.db.Where("created_at < ?", time.Now().Add(-age)).Delete(&models.SecurityLogEntry{})
	return res.RowsAffected, res.Error
}
