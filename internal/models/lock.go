package models

import "time"

// SessionLock is the single-holder advisory lock keyed by worker
// identity. ExpiresAt lets an orphaned lock self-heal after abnormal
// termination.
type SessionLock struct {
	LoginID    string    `json:"loginId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the lock's TTL has elapsed at now.
func (l SessionLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
