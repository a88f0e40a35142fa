package models

import (
	"time"
)

// ResponseType selects the shape of the fake payload a honeypot serves.
type ResponseType string

const (
	ResponseFakeListing ResponseType = "fake_listing"
	ResponseFakeDetail  ResponseType = "fake_detail"
	ResponseFakeError   ResponseType = "fake_error"
	ResponseEmpty       ResponseType = "empty"
)

// HoneypotConfig is administrator-managed reference data describing one decoy
// rule: which requests it matches and how the decoy response should look.
// Read-only to the decision engine at request time.
type HoneypotConfig struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	UUID            string       `json:"uuid" gorm:"uniqueIndex"`
	Name            string       `json:"name" gorm:"index"`
	PathPattern     string       `json:"path_pattern"` // prefix match, "*" suffix for wildcard
	Method          string       `json:"method"`       // empty matches any method
	Priority        int          `json:"priority" gorm:"default:100;index"`
	Enabled         bool         `json:"enabled" gorm:"default:true"`
	ResponseType    ResponseType `json:"response_type" gorm:"default:'fake_listing'"`
	ResponseDelayMs int          `json:"response_delay_ms" gorm:"default:0"`
	BotOnly         bool         `json:"bot_only" gorm:"default:false"`
	MaxTrustScore   int          `json:"max_trust_score" gorm:"default:100"` // trigger only at or below this score
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ValidResponseTypes enumerates accepted honeypot response types.
var ValidResponseTypes = []ResponseType{
	ResponseFakeListing, ResponseFakeDetail, ResponseFakeError, ResponseEmpty,
}
