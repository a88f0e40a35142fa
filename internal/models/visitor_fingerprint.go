package models

import (
	"encoding/json"
	"time"
)

// TrustLevel buckets a visitor's 0-100 trust score into a discrete label.
type TrustLevel string

const (
	TrustLevelUntrusted  TrustLevel = "untrusted"
	TrustLevelSuspicious TrustLevel = "suspicious"
	TrustLevelNeutral    TrustLevel = "neutral"
	TrustLevelTrusted    TrustLevel = "trusted"
	TrustLevelVerified   TrustLevel = "verified"
)

// VisitorFingerprint is the durable record for one client-derived visitor
// identifier. The fingerprint itself is supplied by the client and is never
// trusted for authorization, only for behavioral aggregation. Records are
// created lazily on first sight and never physically deleted; Anonymize
// strips PII while keeping counters for audit continuity.
type VisitorFingerprint struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	Fingerprint      string     `json:"fingerprint" gorm:"uniqueIndex"`
	IP               string     `json:"ip"`
	UserAgent        string     `json:"user_agent"`
	TrustScore       int        `json:"trust_score" gorm:"default:50;index"`
	TrustLevel       TrustLevel `json:"trust_level" gorm:"default:'neutral';index"`
	IsBlocked        bool       `json:"is_blocked" gorm:"default:false;index"`
	BlockReason      string     `json:"block_reason,omitempty"`
	BlockedAt        *time.Time `json:"blocked_at,omitempty"`
	BlockedBy        *uint      `json:"blocked_by,omitempty"`
	UnblockedAt      *time.Time `json:"unblocked_at,omitempty"`
	TotalRequests    int64      `json:"total_requests" gorm:"default:0"`
	BotRequests      int64      `json:"bot_requests" gorm:"default:0"`
	HoneypotTriggers int64      `json:"honeypot_triggers" gorm:"default:0"`
	LinkedUserID     *uint      `json:"linked_user_id,omitempty" gorm:"index"`
	Tags             string     `json:"tags" gorm:"type:text"`  // JSON array of strings
	Notes            string     `json:"notes" gorm:"type:text"` // JSON array, append-only
	ScoredAt         *time.Time `json:"scored_at,omitempty"`
	RequestsAtScore  int64      `json:"-"` // TotalRequests when the score was last computed
	FirstSeenAt      time.Time  `json:"first_seen_at"`
	LastSeenAt       time.Time  `json:"last_seen_at" gorm:"index"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// VisitorNote is one append-only admin annotation.
type VisitorNote struct {
	Text      string    `json:"text"`
	AdminID   uint      `json:"admin_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TagList decodes the JSON-encoded tag set.
func (v *VisitorFingerprint) TagList() []string {
	var tags []string
	if v.Tags != "" {
		_ = json.Unmarshal([]byte(v.Tags), &tags)
	}
	return tags
}

// SetTags stores the tag set, JSON-encoded.
func (v *VisitorFingerprint) SetTags(tags []string) {
	b, _ := json.Marshal(tags)
	v.Tags = string(b)
}

// NoteList decodes the JSON-encoded note log.
func (v *VisitorFingerprint) NoteList() []VisitorNote {
	var notes []VisitorNote
	if v.Notes != "" {
		_ = json.Unmarshal([]byte(v.Notes), &notes)
	}
	return notes
}

// AppendNote adds a note to the append-only log.
func (v *VisitorFingerprint) AppendNote(n VisitorNote) {
	notes := append(v.NoteList(), n)
	b, _ := json.Marshal(notes)
	v.Notes = string(b)
}

// BotRatio is the share of requests classified as bot traffic.
func (v *VisitorFingerprint) BotRatio() float64 {
	if v.TotalRequests == 0 {
		return 0
	}
	return float64(v.BotRequests) / float64(v.TotalRequests)
}

// Anonymize strips personally identifying fields while preserving counters.
func (v *VisitorFingerprint) Anonymize() {
	v.IP = ""
	v.UserAgent = ""
	v.Notes = ""
}

// ClampTrustScore bounds a raw score to the [0,100] contract.
func ClampTrustScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
