package models

import "time"

// Complaint is a report filed by one room member against the other.
type Complaint struct {
	ID                  uint   `gorm:"primaryKey"`
	ReporterFingerprint string `gorm:"uniqueIndex:idx_complaint_once"`
	TargetFingerprint   string `gorm:"index;uniqueIndex:idx_complaint_once"`
	RoomID              string `gorm:"uniqueIndex:idx_complaint_once"`
	// Severity is "Low", "Medium" or "Critical".
	Severity  string
	Reason    string
	Status    string // "new", "banned"
	CreatedAt time.Time
}
