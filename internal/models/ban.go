package models

import "time"

// Ban is a fingerprint ban. ExpiresAt nil means permanent.
type Ban struct {
	Fingerprint string `gorm:"primaryKey"`
	Reason      string
	Level       int
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// Active reports whether the ban still applies at now.
func (b Ban) Active(now time.Time) bool {
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}
