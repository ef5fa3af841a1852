package chathub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairchat/backend/internal/analysis"
	"pairchat/backend/internal/config"
	"pairchat/backend/internal/localization"
	"pairchat/backend/internal/metrics"
	"pairchat/backend/internal/models"
	"pairchat/backend/internal/storage"
)

// MatchRequest is what a connection announces when it asks for a partner.
type MatchRequest struct {
	DisplayName string
	Interests   []string
	Fingerprint string
}

// MatcherService pairs waiting connections: interest overlap first, then
// anyone, oldest entries first.
type MatcherService struct {
	Hub       *ManagerService
	Storage   storage.Storage
	Pool      *WaitingPool
	Interests analysis.InterestMatcher

	cfg config.Config
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer // deferred attempts by handle
}

// NewMatcherService creates a matcher over hub and installs itself as the
// hub's requeue callback.
func NewMatcherService(hub *ManagerService, s storage.Storage, cfg config.Config, log *slog.Logger) *MatcherService {
	m := &MatcherService{
		Hub:       hub,
		Storage:   s,
		Pool:      NewWaitingPool(),
		Interests: analysis.NewFuzzyMatcher(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		timers:    make(map[string]*time.Timer),
	}
	hub.SetRequeueFunc(m.requeue)
	return m
}

// RequestMatch validates the request, puts c in the waiting pool and
// schedules a match attempt after the configured delay.
func (m *MatcherService) RequestMatch(ctx context.Context, c Client, req MatchRequest) error {
	profile := c.GetProfile()
	fp, err := ResolveFingerprint(profile, req.Fingerprint)
	if err != nil {
		return err
	}
	if err := ValidateFingerprint(fp); err != nil {
		return err
	}
	interests, err := NormalizeInterests(req.Interests)
	if err != nil {
		return err
	}
	if err := m.checkBan(ctx, fp); err != nil {
		return err
	}

	if state, ok := m.Hub.RoomStateOf(c); ok {
		if state != RoomDraining {
			return fmt.Errorf("handle %s already in a room: %w", c.GetHandle(), models.ErrDuplicateRequest)
		}
		_ = m.Hub.Leave(c)
	}
	if m.Pool.Contains(c.GetHandle()) {
		return fmt.Errorf("handle %s already queued: %w", c.GetHandle(), models.ErrDuplicateRequest)
	}
	if m.Hub.seatHeldElsewhere(fp, c) && !verifiedAs(profile, fp) {
		return fmt.Errorf("fingerprint %s connected in another room: %w", fp, models.ErrNotMember)
	}
	if m.Hub.LeaveFingerprint(fp) {
		m.log.Info("fingerprint left previous room to queue again", "fingerprint", fp)
	}

	profile.Fingerprint = fp
	profile.DisplayName = NormalizeName(req.DisplayName)
	profile.Interests = interests
	c.SetProfile(profile)

	evicted, err := m.Pool.Enqueue(WaitingEntry{
		Handle:      c.GetHandle(),
		Fingerprint: fp,
		DisplayName: profile.DisplayName,
		Interests:   interests,
		JoinedAt:    m.now(),
	})
	if err != nil {
		return err
	}
	if evicted != nil {
		m.cancelTimer(evicted.Handle)
		m.log.Info("evicted stale queue entry", "fingerprint", fp, "handle", evicted.Handle)
	}
	metrics.WaitingPoolSize.Set(float64(m.Pool.Len()))
	m.log.Debug("queued for match", "handle", c.GetHandle(), "fingerprint", fp, "interests", interests)

	m.Hub.Notify(c, models.ServerEvent{
		Type: models.EventQueued,
		Note: m.Hub.note(c, localization.KeyQueued),
	})
	m.schedule(c.GetHandle())
	return nil
}

// checkBan consults the moderation store with a bounded timeout. Store
// failures follow the BanCheckFailOpen policy.
func (m *MatcherService) checkBan(ctx context.Context, fp string) error {
	if m.Storage == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CollaboratorTimeout)
	defer cancel()

	banned, err := m.Storage.IsBanned(ctx, fp)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("ban_check").Inc()
		m.log.Warn("ban check failed", "fingerprint", fp, "fail_open", m.cfg.BanCheckFailOpen, "err", err)
		if m.cfg.BanCheckFailOpen {
			return nil
		}
		return fmt.Errorf("ban check unavailable: %w", models.ErrBanned)
	}
	if banned {
		return fmt.Errorf("fingerprint %s: %w", fp, models.ErrBanned)
	}
	return nil
}

func (m *MatcherService) schedule(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.timers[handle]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(m.cfg.MatchDelay, func() {
		m.mu.Lock()
		if m.timers[handle] == t {
			delete(m.timers, handle)
		}
		m.mu.Unlock()
		m.AttemptMatch(handle)
	})
	m.timers[handle] = t
}

func (m *MatcherService) cancelTimer(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[handle]; ok {
		t.Stop()
		delete(m.timers, handle)
	}
}

// available reports whether the entry's connection can still be paired.
func (m *MatcherService) available(e WaitingEntry) bool {
	c := m.Hub.Client(e.Handle)
	return c != nil && c.GetRoomID() == ""
}

// AttemptMatch tries to pair handle with a waiting partner. It is a no-op
// when handle is no longer waiting or already in a room.
func (m *MatcherService) AttemptMatch(handle string) bool {
	c := m.Hub.Client(handle)
	if c == nil {
		if _, ok := m.Pool.DequeueByHandle(handle); ok {
			metrics.WaitingPoolSize.Set(float64(m.Pool.Len()))
		}
		return false
	}
	if c.GetRoomID() != "" {
		return false
	}

	matchType := models.MatchTypeInterest
	self, partner, ok := m.Pool.Claim(handle, func(s, cand WaitingEntry) bool {
		return analysis.Overlaps(m.Interests, s.Interests, cand.Interests) && m.available(cand)
	})
	if !ok {
		matchType = models.MatchTypeRandom
		self, partner, ok = m.Pool.Claim(handle, func(_, cand WaitingEntry) bool {
			return m.available(cand)
		})
	}
	if !ok {
		return false
	}

	pc := m.Hub.Client(partner.Handle)
	if pc == nil {
		m.Pool.Restore(self)
		return false
	}
	shared := analysis.SharedSummary(m.Interests, self.Interests, partner.Interests)
	roomID, err := m.Hub.CreateRoom(c, pc, matchType, shared)
	if err != nil {
		m.Pool.Restore(self)
		m.Pool.Restore(partner)
		if !errors.Is(err, models.ErrDuplicateRequest) {
			m.log.Error("failed to create room", "handle", handle, "partner", partner.Handle, "err", err)
		}
		return false
	}
	m.cancelTimer(partner.Handle)
	m.cancelTimer(handle)

	now := m.now()
	metrics.MatchesTotal.WithLabelValues(matchType).Inc()
	metrics.MatchWait.Observe(now.Sub(self.JoinedAt).Seconds())
	metrics.MatchWait.Observe(now.Sub(partner.JoinedAt).Seconds())
	metrics.WaitingPoolSize.Set(float64(m.Pool.Len()))
	m.log.Info("match found", "room_id", roomID, "match_type", matchType,
		"a", self.Fingerprint, "b", partner.Fingerprint)
	return true
}

// LeaveQueue removes c from the waiting pool and cancels its pending attempt.
func (m *MatcherService) LeaveQueue(c Client) bool {
	m.cancelTimer(c.GetHandle())
	_, ok := m.Pool.DequeueByHandle(c.GetHandle())
	if ok {
		metrics.WaitingPoolSize.Set(float64(m.Pool.Len()))
		m.log.Debug("left queue", "handle", c.GetHandle())
	}
	return ok
}

// Evict removes every queued entry and the room seat held by fingerprint,
// as a ban requires. It reports whether anything was removed.
func (m *MatcherService) Evict(fingerprint string) bool {
	removed := m.Pool.DequeueByFingerprint(fingerprint)
	for _, e := range removed {
		m.cancelTimer(e.Handle)
	}
	if len(removed) > 0 {
		metrics.WaitingPoolSize.Set(float64(m.Pool.Len()))
		m.log.Info("evicted from queue", "fingerprint", fingerprint, "entries", len(removed))
	}
	left := m.Hub.LeaveFingerprint(fingerprint)
	return len(removed) > 0 || left
}

// Waiting returns the number of queued entries.
func (m *MatcherService) Waiting() int {
	return m.Pool.Len()
}

// Rescan re-attempts every entry that has waited at least the match delay,
// oldest first, and returns how many rooms it created.
func (m *MatcherService) Rescan(now time.Time) int {
	matched := 0
	for e := range m.Pool.Snapshot() {
		if now.Sub(e.JoinedAt) < m.cfg.MatchDelay {
			continue
		}
		if m.AttemptMatch(e.Handle) {
			matched++
		}
	}
	return matched
}

// Run rescans the pool on cfg.MatchRescanInterval until ctx is done.
func (m *MatcherService) Run(ctx context.Context) {
	if m.cfg.MatchRescanInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.MatchRescanInterval)
	defer ticker.Stop()
	m.log.Info("matcher rescan started", "interval", m.cfg.MatchRescanInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if n := m.Rescan(t); n > 0 {
				m.log.Debug("rescan matched", "rooms", n)
			}
		}
	}
}

// requeue puts a member whose partner is gone back in the pool with the
// profile it was matched with.
func (m *MatcherService) requeue(c Client) {
	p := c.GetProfile()
	err := m.RequestMatch(context.Background(), c, MatchRequest{
		DisplayName: p.DisplayName,
		Interests:   p.Interests,
		Fingerprint: p.Fingerprint,
	})
	if err != nil {
		m.log.Info("requeue failed", "handle", c.GetHandle(), "err", err)
	}
}
