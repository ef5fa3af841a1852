package chathub_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(handle, fp string, joined time.Time, interests ...string) chathub.WaitingEntry {
	return chathub.WaitingEntry{Handle: handle, Fingerprint: fp, DisplayName: handle, Interests: interests, JoinedAt: joined}
}

func handles(p *chathub.WaitingPool) []string {
	var out []string
	for e := range p.Snapshot() {
		out = append(out, e.Handle)
	}
	return out
}

func TestWaitingPool_DuplicateFingerprintEvicts(t *testing.T) {
	p := chathub.NewWaitingPool()
	now := time.Now()

	evicted, err := p.Enqueue(entry("h1", "fp", now))
	require.NoError(t, err)
	assert.Nil(t, evicted)

	evicted, err = p.Enqueue(entry("h2", "fp", now.Add(time.Second)))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "h1", evicted.Handle)

	assert.Equal(t, 1, p.Len())
	assert.False(t, p.Contains("h1"))
	assert.True(t, p.Contains("h2"))
}

func TestWaitingPool_DuplicateHandleRejected(t *testing.T) {
	p := chathub.NewWaitingPool()
	_, err := p.Enqueue(entry("h1", "fp1", time.Now()))
	require.NoError(t, err)

	_, err = p.Enqueue(entry("h1", "fp2", time.Now()))
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)
	assert.Equal(t, 1, p.Len())
}

func TestWaitingPool_Dequeue(t *testing.T) {
	p := chathub.NewWaitingPool()
	now := time.Now()
	_, _ = p.Enqueue(entry("h1", "fp1", now))
	_, _ = p.Enqueue(entry("h2", "fp2", now))

	e, ok := p.DequeueByHandle("h1")
	require.True(t, ok)
	assert.Equal(t, "fp1", e.Fingerprint)

	_, ok = p.DequeueByHandle("h1")
	assert.False(t, ok)

	removed := p.DequeueByFingerprint("fp2")
	assert.Len(t, removed, 1)
	assert.Zero(t, p.Len())
	assert.Empty(t, p.DequeueByFingerprint("fp2"))
}

func TestWaitingPool_SnapshotOldestFirstAndStable(t *testing.T) {
	p := chathub.NewWaitingPool()
	now := time.Now()
	_, _ = p.Enqueue(entry("late", "fp3", now.Add(2*time.Second)))
	_, _ = p.Enqueue(entry("early", "fp1", now))
	_, _ = p.Enqueue(entry("mid", "fp2", now.Add(time.Second)))

	snap := p.Snapshot()
	p.DequeueByHandle("mid")

	var first, second []string
	for e := range snap {
		first = append(first, e.Handle)
	}
	for e := range snap {
		second = append(second, e.Handle)
	}
	assert.Equal(t, []string{"early", "mid", "late"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"early", "late"}, handles(p))
}

func TestWaitingPool_ClaimPicksOldestAccepted(t *testing.T) {
	p := chathub.NewWaitingPool()
	now := time.Now()
	_, _ = p.Enqueue(entry("me", "fp0", now.Add(3*time.Second), "go"))
	_, _ = p.Enqueue(entry("a", "fp1", now, "rust"))
	_, _ = p.Enqueue(entry("b", "fp2", now.Add(time.Second), "golang"))

	self, partner, ok := p.Claim("me", func(_, cand chathub.WaitingEntry) bool {
		return cand.Interests[0] == "golang"
	})
	require.True(t, ok)
	assert.Equal(t, "me", self.Handle)
	assert.Equal(t, "b", partner.Handle)
	assert.Equal(t, []string{"a"}, handles(p))

	_, _, ok = p.Claim("me", nil)
	assert.False(t, ok, "claimed entries leave the pool")
}

func TestWaitingPool_RestoreKeepsOrder(t *testing.T) {
	p := chathub.NewWaitingPool()
	now := time.Now()
	_, _ = p.Enqueue(entry("a", "fp1", now))
	_, _ = p.Enqueue(entry("b", "fp2", now.Add(time.Second)))
	_, _ = p.Enqueue(entry("c", "fp3", now.Add(2*time.Second)))

	self, partner, ok := p.Claim("a", nil)
	require.True(t, ok)
	assert.True(t, p.Restore(self))
	assert.True(t, p.Restore(partner))
	assert.False(t, p.Restore(self))
	assert.Equal(t, []string{"a", "b", "c"}, handles(p))
}

func TestWaitingPool_ConcurrentClaimsNeverShareEntries(t *testing.T) {
	p := chathub.NewWaitingPool()
	now := time.Now()
	const n = 200
	for i := 0; i < n; i++ {
		_, err := p.Enqueue(entry(fmt.Sprintf("h%d", i), fmt.Sprintf("fp%d", i), now.Add(time.Duration(i))))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			self, partner, ok := p.Claim(fmt.Sprintf("h%d", i), nil)
			if !ok {
				return
			}
			mu.Lock()
			seen[self.Handle]++
			seen[partner.Handle]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for h, count := range seen {
		assert.Equal(t, 1, count, "handle %s claimed more than once", h)
	}
	assert.Equal(t, n, len(seen)+p.Len())
}
