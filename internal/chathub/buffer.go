package chathub

import (
	"time"

	"pairchat/backend/internal/models"
)

// historyBuffer is a fixed-size circular buffer of a room's recent messages.
// It is not safe for concurrent use; the hub guards it with its own lock.
type historyBuffer struct {
	items []*models.Message
	pos   int
	count int
}

func newHistoryBuffer(size int) *historyBuffer {
	if size <= 0 {
		size = 1
	}
	return &historyBuffer{items: make([]*models.Message, size)}
}

// Append stores msg, overwriting the oldest entry when full.
func (b *historyBuffer) Append(msg *models.Message) {
	b.items[b.pos] = msg
	b.pos = (b.pos + 1) % len(b.items)
	if b.count < len(b.items) {
		b.count++
	}
}

// Len returns the number of retained messages.
func (b *historyBuffer) Len() int { return b.count }

// Find returns the retained message with id, or nil.
func (b *historyBuffer) Find(id string) *models.Message {
	for i := 0; i < b.count; i++ {
		if m := b.at(i); m.ID == id {
			return m
		}
	}
	return nil
}

// Since returns copies of the retained messages newer than since, oldest
// first. A zero since returns everything.
func (b *historyBuffer) Since(since time.Time) []models.Message {
	out := make([]models.Message, 0, b.count)
	for i := 0; i < b.count; i++ {
		m := b.at(i)
		if since.IsZero() || m.Timestamp.After(since) {
			out = append(out, m.Clone())
		}
	}
	return out
}

// at returns the i-th oldest retained message.
func (b *historyBuffer) at(i int) *models.Message {
	start := (b.pos - b.count + len(b.items)) % len(b.items)
	return b.items[(start+i)%len(b.items)]
}
