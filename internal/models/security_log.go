package models

import (
	"encoding/json"
	"time"
)

// EventType labels the kind of security-relevant decision an entry records.
type EventType string

const (
	EventRequest          EventType = "request"
	EventBotDetected      EventType = "bot_detected"
	EventHoneypotServed   EventType = "honeypot_served"
	EventRateLimited      EventType = "rate_limited"
	EventBlocked          EventType = "blocked"
	EventAuthAttempt      EventType = "auth_attempt"
	EventAuthSuccess      EventType = "auth_success"
	EventAuthFailure      EventType = "auth_failure"
	EventVisitorBlocked   EventType = "visitor_blocked"
	EventVisitorUnblocked EventType = "visitor_unblocked"
)

// Severity grades a log entry for dashboards and alert routing.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SecurityLogEntry is the immutable audit record for one engine decision.
// Entries are created once and never updated or deleted by the engine.
type SecurityLogEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	RequestID string    `json:"request_id" gorm:"index"`
	VisitorID *string   `json:"visitor_id,omitempty" gorm:"index"`
	UserID    *uint     `json:"user_id,omitempty" gorm:"index"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	EventType EventType `json:"event_type" gorm:"index"`
	Severity  Severity  `json:"severity" gorm:"index"`
	IsBot     bool      `json:"is_bot" gorm:"index"`
	Honeypot  bool      `json:"honeypot" gorm:"index"`
	Metadata  string    `json:"metadata" gorm:"type:text"` // JSON object
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// SetMetadata JSON-encodes structured metadata onto the entry.
func (e *SecurityLogEntry) SetMetadata(md map[string]interface{}) {
	if len(md) == 0 {
		return
	}
	b, _ := json.Marshal(md)
	e.Metadata = string(b)
}

// MetadataMap decodes the metadata payload, returning an empty map when unset.
func (e *SecurityLogEntry) MetadataMap() map[string]interface{} {
	md := map[string]interface{}{}
	if e.Metadata != "" {
		_ = json.Unmarshal([]byte(e.Metadata), &md)
	}
	return md
}

// ValidEventTypes enumerates accepted event type filters.
var ValidEventTypes = []EventType{
	EventRequest, EventBotDetected, EventHoneypotServed, EventRateLimited,
	EventBlocked, EventAuthAttempt, EventAuthSuccess, EventAuthFailure,
	EventVisitorBlocked, EventVisitorUnblocked,
}

// ValidSeverities enumerates accepted severity filters.
var ValidSeverities = []Severity{
	SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical,
}
