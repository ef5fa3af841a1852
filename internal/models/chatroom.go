package models

import (
	"time"

	"github.com/lib/pq"
)

// ChatRoom is the audit record of a paired session. The live room state is
// held in memory by the hub; this row only tracks who met whom and why the
// room ended.
type ChatRoom struct {
	// RoomID is the opaque room identifier (UUID).
	RoomID string `gorm:"primaryKey"`
	// Alias is the human-readable name admins can use instead of RoomID.
	Alias string `gorm:"index"`
	// User1Fingerprint and User2Fingerprint identify the paired clients.
	User1Fingerprint string `gorm:"index"`
	User2Fingerprint string `gorm:"index"`
	// Interests holds the union of both sides' interest tags.
	Interests pq.StringArray `gorm:"type:text[]"`
	// MatchType is "interest" or "random".
	MatchType string
	IsActive  bool
	StartedAt time.Time
	EndedAt   *time.Time
	// CloseReason records why the room reached Closed.
	CloseReason string
}
