package chathub

import (
	"fmt"
	"time"

	"pairchat/backend/internal/localization"
	"pairchat/backend/internal/models"
)

// disconnectLocked marks c's room membership as disconnected and arms the
// reconnect grace timer for its fingerprint.
func (m *ManagerService) disconnectLocked(c Client) {
	fp := c.GetProfile().Fingerprint
	roomID, ok := m.roomByFingerprint[fp]
	if !ok {
		return
	}
	r := m.rooms[roomID]
	if r == nil {
		return
	}
	mem := r.memberByFingerprint(fp)
	if mem == nil || mem.client != c {
		return
	}
	mem.disconnected = true
	m.log.Info("member disconnected, grace started", "room_id", r.ID, "fingerprint", fp, "grace", m.cfg.ReconnectGrace)

	m.stopGraceLocked(fp)
	var t *time.Timer
	t = time.AfterFunc(m.cfg.ReconnectGrace, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.graceTimers[fp] != t {
			return
		}
		delete(m.graceTimers, fp)
		cur := r.memberByFingerprint(fp)
		if cur == nil || !cur.disconnected || cur.client != c {
			return
		}
		m.log.Info("reconnect grace expired", "room_id", r.ID, "fingerprint", fp)
		m.leaveLocked(fp, c.GetHandle(), true)
	})
	m.graceTimers[fp] = t
}

func (m *ManagerService) stopGraceLocked(fingerprint string) {
	if t, ok := m.graceTimers[fingerprint]; ok {
		t.Stop()
		delete(m.graceTimers, fingerprint)
	}
}

// seatHeldElsewhere reports whether fingerprint sits in a room on a connected
// socket other than c.
func (m *ManagerService) seatHeldElsewhere(fingerprint string, c Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rooms[m.roomByFingerprint[fingerprint]]
	if r == nil {
		return false
	}
	mem := r.memberByFingerprint(fingerprint)
	return mem != nil && !mem.disconnected && mem.client != c
}

// Reconnect binds c to the membership of fingerprint in roomID, replays the
// retained history to c and tells the peer. A member whose grace already
// expired may rejoin while the room is still draining. A member that is
// still connected can only be taken over by a socket whose verified
// fingerprint matches.
func (m *ManagerService) Reconnect(c Client, roomID, fingerprint string) ([]models.Message, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("missing fingerprint: %w", models.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.resolveLocked(roomID)
	if r == nil || r.State == RoomClosed {
		return nil, fmt.Errorf("room %q: %w", roomID, models.ErrNotFound)
	}
	if cur := c.GetRoomID(); cur != "" && cur != r.ID {
		return nil, fmt.Errorf("client already in room %s: %w", cur, models.ErrDuplicateRequest)
	}

	mem := r.memberByFingerprint(fingerprint)
	switch {
	case mem != nil:
		if mem.client == c && !mem.disconnected {
			return nil, fmt.Errorf("already connected to room %s: %w", r.ID, models.ErrDuplicateRequest)
		}
		if !mem.disconnected {
			if !verifiedAs(c.GetProfile(), fingerprint) {
				return nil, fmt.Errorf("fingerprint %s still connected to room %s: %w", fingerprint, r.ID, models.ErrNotMember)
			}
		}
		if old := mem.client; old != nil && old != c && old.GetRoomID() == r.ID {
			old.SetRoomID("")
		}
	case r.State == RoomDraining && r.departed[fingerprint] != nil:
		mem = r.departed[fingerprint]
		if err := r.addMember(mem); err != nil {
			return nil, err
		}
		delete(r.departed, fingerprint)
		m.roomByFingerprint[fingerprint] = r.ID
		r.stopDrainTimer()
		r.State = RoomActive
	default:
		return nil, fmt.Errorf("fingerprint not a member of room %s: %w", r.ID, models.ErrNotMember)
	}

	mem.client = c
	mem.disconnected = false
	m.stopGraceLocked(fingerprint)
	c.SetRoomID(r.ID)

	p := c.GetProfile()
	p.Fingerprint = fingerprint
	if p.DisplayName == "" {
		p.DisplayName = mem.name
	}
	if len(p.Interests) == 0 {
		p.Interests = mem.interests
	}
	c.SetProfile(p)
	r.touch(m.now())

	history := r.history.Since(time.Time{})
	m.sendLocked(c, models.ServerEvent{Type: models.EventHistory, RoomID: r.ID, History: history})
	if peer := r.peerOf(fingerprint); peer != nil && !peer.disconnected {
		m.sendLocked(peer.client, models.ServerEvent{
			Type:   models.EventPartnerReconnected,
			RoomID: r.ID,
			Name:   mem.name,
			Note:   m.note(peer.client, localization.KeyPartnerReconnected, mem.name),
		})
	}
	m.log.Info("member reconnected", "room_id", r.ID, "fingerprint", fingerprint, "handle", c.GetHandle())
	return history, nil
}
