package chathub

import (
	"context"
	"time"

	"pairchat/backend/internal/localization"
	"pairchat/backend/internal/models"
)

// SweepResult counts what one inactivity sweep did.
type SweepResult struct {
	Warned int
	Closed int
}

// Sweep warns rooms approaching the inactivity timeout (once per idle
// stretch) and closes rooms past it. It works on a snapshot of room ids.
func (m *ManagerService) Sweep(now time.Time) SweepResult {
	m.mu.Lock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var res SweepResult
	for _, id := range ids {
		m.mu.Lock()
		switch m.sweepRoomLocked(id, now) {
		case sweepWarned:
			res.Warned++
		case sweepClosed:
			res.Closed++
		}
		m.mu.Unlock()
	}
	if res.Warned > 0 || res.Closed > 0 {
		m.log.Info("inactivity sweep", "warned", res.Warned, "closed", res.Closed)
	}
	return res
}

type sweepOutcome int

const (
	sweepNone sweepOutcome = iota
	sweepWarned
	sweepClosed
)

func (m *ManagerService) sweepRoomLocked(id string, now time.Time) sweepOutcome {
	r := m.rooms[id]
	if r == nil || (r.State != RoomActive && r.State != RoomDraining) {
		return sweepNone
	}
	idle := now.Sub(r.LastActivityAt)
	timeout := m.cfg.InactivityTimeout
	switch {
	case idle >= timeout:
		m.evictAndCloseLocked(r, ReasonInactivity)
		return sweepClosed
	case idle >= timeout-m.cfg.InactivityWarningLead && !r.warned:
		r.warned = true
		remaining := (timeout - idle).Round(time.Second).String()
		for _, mem := range r.members {
			if mem.disconnected {
				continue
			}
			m.sendLocked(mem.client, models.ServerEvent{
				Type:   models.EventInactivityWarning,
				RoomID: r.ID,
				Note:   m.note(mem.client, localization.KeyInactivityWarning, remaining),
			})
		}
		return sweepWarned
	}
	return sweepNone
}

// Run sweeps on cfg.SweepInterval until ctx is done.
func (m *ManagerService) Run(ctx context.Context) {
	if m.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	m.log.Info("room sweeper started", "interval", m.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}

// Stats returns the current connection and room counts.
func (m *ManagerService) Stats() (connections, rooms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients), len(m.rooms)
}
