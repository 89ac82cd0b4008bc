package lifecycle

import (
	"time"

	"pastebox/internal/storage"
)

// Status is the gate outcome for a fetched paste.
type Status int

const (
	StatusActive Status = iota
	StatusExpired
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Evaluate applies the time and view gates to p at now, using the count as
// fetched. The expiry instant itself is already expired.
func Evaluate(p storage.Paste, now time.Time) Status {
	if p.HasExpiration() && !now.Before(p.ExpiresAt) {
		return StatusExpired
	}
	if p.HasViewLimit() && p.ViewCount >= p.MaxViews {
		return StatusExhausted
	}
	return StatusActive
}

// RemainingViews returns max(0, maxViews-count), or nil without a view limit.
func RemainingViews(maxViews, count int) *int {
	if maxViews <= 0 {
		return nil
	}
	remaining := maxViews - count
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
