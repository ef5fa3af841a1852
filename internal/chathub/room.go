package chathub

import (
	"fmt"
	"slices"
	"time"

	"pairchat/backend/internal/models"
)

// RoomState is the lifecycle stage of a room.
type RoomState int

const (
	// RoomForming: created, members not yet joined.
	RoomForming RoomState = iota
	// RoomActive: at least one connected member.
	RoomActive
	// RoomDraining: one member left; the other is about to return to the pool
	// unless the departed member reconnects.
	RoomDraining
	// RoomClosed is terminal.
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomForming:
		return "forming"
	case RoomActive:
		return "active"
	case RoomDraining:
		return "draining"
	case RoomClosed:
		return "closed"
	}
	return fmt.Sprintf("RoomState(%d)", int(s))
}

// maxMembers is the capacity of a pairwise room.
const maxMembers = 2

// Close reasons recorded on the room and sent in room-closed.
const (
	ReasonInactivity  = "inactivity"
	ReasonAdmin       = "admin"
	ReasonPartnerLeft = "partner_left"
	ReasonEmpty       = "empty"
)

// member is a room participant. Identity is the fingerprint; client is the
// socket currently bound to it.
type member struct {
	fingerprint  string
	name         string
	interests    []string
	client       Client
	disconnected bool
}

func (m *member) handle() string {
	if m.client == nil {
		return ""
	}
	return m.client.GetHandle()
}

// Room is the hub's in-memory state for one pairwise session. All fields are
// guarded by the ManagerService lock.
type Room struct {
	ID             string
	Alias          string
	State          RoomState
	MatchType      string
	SharedInterest string
	CreatedAt      time.Time
	LastActivityAt time.Time

	members    []*member
	departed   map[string]*member // left through reconnect-grace expiry; may rejoin while draining
	history    *historyBuffer
	warned     bool
	drainTimer *time.Timer
}

func newRoom(id, alias string, historySize int, now time.Time) *Room {
	return &Room{
		ID:             id,
		Alias:          alias,
		State:          RoomForming,
		CreatedAt:      now,
		LastActivityAt: now,
		departed:       make(map[string]*member),
		history:        newHistoryBuffer(historySize),
	}
}

func (r *Room) addMember(m *member) error {
	if len(r.members) >= maxMembers {
		return fmt.Errorf("room %s: %w", r.ID, models.ErrRoomFull)
	}
	if r.memberByFingerprint(m.fingerprint) != nil {
		return fmt.Errorf("fingerprint already in room %s: %w", r.ID, models.ErrDuplicateRequest)
	}
	r.members = append(r.members, m)
	return nil
}

func (r *Room) removeMember(fingerprint string) *member {
	for i, m := range r.members {
		if m.fingerprint == fingerprint {
			r.members = slices.Delete(r.members, i, i+1)
			return m
		}
	}
	return nil
}

func (r *Room) memberByFingerprint(fingerprint string) *member {
	for _, m := range r.members {
		if m.fingerprint == fingerprint {
			return m
		}
	}
	return nil
}

func (r *Room) memberByHandle(handle string) *member {
	for _, m := range r.members {
		if !m.disconnected && m.handle() == handle {
			return m
		}
	}
	return nil
}

// peerOf returns the other member, or nil.
func (r *Room) peerOf(fingerprint string) *member {
	for _, m := range r.members {
		if m.fingerprint != fingerprint {
			return m
		}
	}
	return nil
}

// touch records activity and re-arms the inactivity warning.
func (r *Room) touch(now time.Time) {
	r.LastActivityAt = now
	r.warned = false
}

func (r *Room) stopDrainTimer() {
	if r.drainTimer != nil {
		r.drainTimer.Stop()
		r.drainTimer = nil
	}
}

// RoomSummary is a read-only view of a room for admin surfaces and tests.
type RoomSummary struct {
	ID             string    `json:"id"`
	Alias          string    `json:"alias"`
	State          string    `json:"state"`
	MatchType      string    `json:"match_type"`
	Members        []string  `json:"members"`
	Fingerprints   []string  `json:"fingerprints"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func (r *Room) summary() RoomSummary {
	s := RoomSummary{
		ID:             r.ID,
		Alias:          r.Alias,
		State:          r.State.String(),
		MatchType:      r.MatchType,
		CreatedAt:      r.CreatedAt,
		LastActivityAt: r.LastActivityAt,
	}
	if r.history != nil {
		s.MessageCount = r.history.Len()
	}
	for _, m := range r.members {
		s.Members = append(s.Members, m.name)
		s.Fingerprints = append(s.Fingerprints, m.fingerprint)
	}
	return s
}
