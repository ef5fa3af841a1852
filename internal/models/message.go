package models

import (
	"slices"
	"time"
)

// Message kinds accepted in a room.
const (
	KindText    = "text"
	KindImage   = "image"
	KindAudio   = "audio"
	KindGIF     = "gif"
	KindSticker = "sticker"
)

// IsValidKind reports whether kind is one of the supported message kinds.
func IsValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindAudio, KindGIF, KindSticker:
		return true
	}
	return false
}

// IsMedia reports whether kind carries media that is relayed to moderation.
func IsMedia(kind string) bool {
	return kind != KindText && IsValidKind(kind)
}

// Message is a single entry of a room's recent history.
type Message struct {
	ID                string              `json:"id"`
	RoomID            string              `json:"room_id"`
	SenderFingerprint string              `json:"sender_fingerprint"`
	SenderName        string              `json:"sender_name"`
	Kind              string              `json:"kind"`
	Payload           string              `json:"payload"`
	Timestamp         time.Time           `json:"timestamp"`
	Reactions         map[string][]string `json:"reactions,omitempty"`
	Unsent            bool                `json:"unsent,omitempty"`
}

// ToggleReaction adds reactor to the tag's reactor set, or removes it if
// already present. A tag whose set becomes empty is dropped. It returns true
// when the reactor was added.
func (m *Message) ToggleReaction(tag, reactor string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	names := m.Reactions[tag]
	if i := slices.Index(names, reactor); i >= 0 {
		names = slices.Delete(names, i, i+1)
		if len(names) == 0 {
			delete(m.Reactions, tag)
		} else {
			m.Reactions[tag] = names
		}
		if len(m.Reactions) == 0 {
			m.Reactions = nil
		}
		return false
	}
	names = append(names, reactor)
	slices.Sort(names)
	m.Reactions[tag] = names
	return true
}

// Unsend blanks the payload and clears reactions, keeping the id so later
// reactions and repeated unsends resolve to the same record.
func (m *Message) Unsend() {
	m.Unsent = true
	m.Payload = ""
	m.Reactions = nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		reactions := make(map[string][]string, len(m.Reactions))
		for tag, names := range m.Reactions {
			reactions[tag] = slices.Clone(names)
		}
		m.Reactions = reactions
	}
	return m
}
