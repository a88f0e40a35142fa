package models

import (
	"time"
)

// RateLimitPolicy describes the token bucket applied to one endpoint class.
// Expensive operations get small buckets, cheap reads get large ones.
type RateLimitPolicy struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Class      string    `json:"class" gorm:"uniqueIndex"`
	MaxTokens  int       `json:"max_tokens"`
	RefillRate int       `json:"refill_rate"` // tokens added per window
	WindowMs   int64     `json:"window_ms"`
	FailClosed bool      `json:"fail_closed" gorm:"default:false"` // deny when every store path is down
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Window returns the refill window as a duration.
func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

// DefaultRateLimitPolicies seeds the per-class defaults used until an
// administrator tunes them.
func DefaultRateLimitPolicies() []RateLimitPolicy {
	return []RateLimitPolicy{
		{Class: "read", MaxTokens: 100, RefillRate: 100, WindowMs: time.Hour.Milliseconds()},
		{Class: "write", MaxTokens: 60, RefillRate: 60, WindowMs: time.Hour.Milliseconds()},
		{Class: "expensive", MaxTokens: 20, RefillRate: 20, WindowMs: time.Hour.Milliseconds(), FailClosed: true},
		{Class: "auth", MaxTokens: 10, RefillRate: 10, WindowMs: (15 * time.Minute).Milliseconds(), FailClosed: true},
	}
}
