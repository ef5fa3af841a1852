package chathub

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"pairchat/backend/internal/models"
)

// WaitingEntry is a pending match request.
type WaitingEntry struct {
	Handle      string
	Fingerprint string
	DisplayName string
	Interests   []string
	JoinedAt    time.Time
}

func (e WaitingEntry) clone() WaitingEntry {
	e.Interests = slices.Clone(e.Interests)
	return e
}

// WaitingPool holds at most one entry per fingerprint, ordered by arrival
// (oldest first). All methods are safe for concurrent use.
type WaitingPool struct {
	mu            sync.Mutex
	entries       []*WaitingEntry
	byHandle      map[string]*WaitingEntry
	byFingerprint map[string]*WaitingEntry
}

// NewWaitingPool creates an empty pool.
func NewWaitingPool() *WaitingPool {
	return &WaitingPool{
		byHandle:      make(map[string]*WaitingEntry),
		byFingerprint: make(map[string]*WaitingEntry),
	}
}

// Enqueue inserts e. It fails with ErrDuplicateRequest when the handle is
// already waiting. A stale entry for the same fingerprint under another
// handle is evicted first and returned.
func (p *WaitingPool) Enqueue(e WaitingEntry) (*WaitingEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHandle[e.Handle]; ok {
		return nil, fmt.Errorf("handle %s already queued: %w", e.Handle, models.ErrDuplicateRequest)
	}

	var evicted *WaitingEntry
	if old, ok := p.byFingerprint[e.Fingerprint]; ok {
		p.removeLocked(old)
		cp := old.clone()
		evicted = &cp
	}

	entry := e.clone()
	p.insertLocked(&entry)
	return evicted, nil
}

// DequeueByHandle removes and returns the entry for handle.
func (p *WaitingPool) DequeueByHandle(handle string) (WaitingEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byHandle[handle]
	if !ok {
		return WaitingEntry{}, false
	}
	p.removeLocked(e)
	return e.clone(), true
}

// DequeueByFingerprint removes every entry carrying fingerprint.
func (p *WaitingPool) DequeueByFingerprint(fingerprint string) []WaitingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []WaitingEntry
	for _, e := range slices.Clone(p.entries) {
		if e.Fingerprint == fingerprint {
			p.removeLocked(e)
			removed = append(removed, e.clone())
		}
	}
	return removed
}

// Contains reports whether handle is waiting.
func (p *WaitingPool) Contains(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHandle[handle]
	return ok
}

// Len returns the number of waiting entries, which equals the number of
// distinct waiting fingerprints.
func (p *WaitingPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Snapshot returns a sequence over the entries present at call time, oldest
// first. The sequence can be ranged over any number of times and is not
// affected by later mutation of the pool.
func (p *WaitingPool) Snapshot() iter.Seq[WaitingEntry] {
	p.mu.Lock()
	entries := make([]WaitingEntry, len(p.entries))
	for i, e := range p.entries {
		entries[i] = e.clone()
	}
	p.mu.Unlock()

	return func(yield func(WaitingEntry) bool) {
		for _, e := range entries {
			if !yield(e.clone()) {
				return
			}
		}
	}
}

// Claim atomically picks a partner for handle and removes both entries. The
// partner is the oldest entry with a different fingerprint for which accept
// returns true. ok is false when handle is not waiting or no partner
// qualifies; the pool is then unchanged.
func (p *WaitingPool) Claim(handle string, accept func(self, candidate WaitingEntry) bool) (self, partner WaitingEntry, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	me, found := p.byHandle[handle]
	if !found {
		return WaitingEntry{}, WaitingEntry{}, false
	}
	for _, cand := range p.entries {
		if cand == me || cand.Fingerprint == me.Fingerprint {
			continue
		}
		if accept != nil && !accept(*me, *cand) {
			continue
		}
		p.removeLocked(me)
		p.removeLocked(cand)
		return me.clone(), cand.clone(), true
	}
	return WaitingEntry{}, WaitingEntry{}, false
}

// Restore puts back an entry removed by Claim, keeping its place in arrival
// order. It is a no-op if the handle or fingerprint is already waiting again.
func (p *WaitingPool) Restore(e WaitingEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHandle[e.Handle]; ok {
		return false
	}
	if _, ok := p.byFingerprint[e.Fingerprint]; ok {
		return false
	}
	entry := e.clone()
	p.insertLocked(&entry)
	return true
}

// insertLocked keeps entries sorted by JoinedAt; equal times keep arrival order.
func (p *WaitingPool) insertLocked(e *WaitingEntry) {
	i := len(p.entries)
	for i > 0 && p.entries[i-1].JoinedAt.After(e.JoinedAt) {
		i--
	}
	p.entries = slices.Insert(p.entries, i, e)
	p.byHandle[e.Handle] = e
	p.byFingerprint[e.Fingerprint] = e
}

func (p *WaitingPool) removeLocked(e *WaitingEntry) {
	if i := slices.Index(p.entries, e); i >= 0 {
		p.entries = slices.Delete(p.entries, i, i+1)
	}
	if p.byHandle[e.Handle] == e {
		delete(p.byHandle, e.Handle)
	}
	if p.byFingerprint[e.Fingerprint] == e {
		delete(p.byFingerprint, e.Fingerprint)
	}
}
