package chathub_test

import (
	"testing"
	"time"

	"pairchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_ReconnectWithinGrace(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	_, err := hub.PostMessage(roomID, a, text("before drop"))
	require.NoError(t, err)
	b.drain()

	hub.Unregister(a)
	a2 := newMockClient("h-alice-2")
	hub.Register(a2)

	history, err := hub.Reconnect(a2, roomID, "fp-alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, roomID, a2.GetRoomID())
	assert.Equal(t, "Alice", a2.GetProfile().DisplayName)

	ev := a2.next(t, models.EventHistory)
	assert.Equal(t, "before drop", ev.History[0].Payload)
	peer := b.next(t, models.EventPartnerReconnected)
	assert.Equal(t, "Alice", peer.Name)

	time.Sleep(120 * time.Millisecond)
	summary, ok := hub.Room(roomID)
	require.True(t, ok)
	assert.Equal(t, "active", summary.State)
	assert.Zero(t, countType(b.drain(), models.EventUserLeft))

	_, err = hub.PostMessage(roomID, a2, text("back"))
	require.NoError(t, err)
	got := b.next(t, models.EventMessage)
	assert.Equal(t, "fp-alice", got.Message.SenderFingerprint)
}

func TestPresence_GraceExpiryLeaves(t *testing.T) {
	hub, matcher := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	hub.Unregister(a)
	ev := b.next(t, models.EventUserLeft)
	assert.Equal(t, "Alice", ev.Name)

	b.next(t, models.EventQueued)
	_, ok := hub.Room(roomID)
	assert.False(t, ok)
	assert.True(t, matcher.Pool.Contains("h-bob"))
}

func TestPresence_RejoinWhileDraining(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectGrace = 20 * time.Millisecond
	cfg.DrainGrace = time.Hour
	hub, _ := newTestHub(nil, cfg)
	a, b, roomID := pair(t, hub)

	hub.Unregister(a)
	b.next(t, models.EventUserLeft)
	summary, _ := hub.Room(roomID)
	require.Equal(t, "draining", summary.State)

	a2 := newMockClient("h-alice-2")
	hub.Register(a2)
	_, err := hub.Reconnect(a2, roomID, "fp-alice")
	require.NoError(t, err)

	summary, _ = hub.Room(roomID)
	assert.Equal(t, "active", summary.State)
	assert.Len(t, summary.Fingerprints, 2)
	b.next(t, models.EventPartnerReconnected)
}

func TestPresence_ReconnectRejected(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, _, roomID := pair(t, hub)
	stranger := newMockClient("h-mallory")
	hub.Register(stranger)

	_, err := hub.Reconnect(stranger, roomID, "fp-mallory")
	assert.ErrorIs(t, err, models.ErrNotMember)

	_, err = hub.Reconnect(stranger, "gone", "fp-alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = hub.Reconnect(stranger, roomID, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = hub.Reconnect(a, roomID, "fp-alice")
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)
}

func TestPresence_ConnectedMemberCannotBeSeized(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	for _, other := range []*MockClient{
		newProfiledClient("h-eve", "fp-eve", "Eve"),
		newVerifiedClient("h-eve-token", "fp-eve"),
	} {
		hub.Register(other)
		_, err := hub.Reconnect(other, roomID, "fp-alice")
		assert.ErrorIs(t, err, models.ErrNotMember)
		assert.Empty(t, other.GetRoomID())
		assert.Zero(t, countType(other.drain(), models.EventHistory))
	}
	assert.Equal(t, roomID, a.GetRoomID())
	assert.Zero(t, countType(b.drain(), models.EventPartnerReconnected))
}

func TestPresence_NewSocketTakesOverMembership(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	tab := newVerifiedClient("h-alice-tab", "fp-alice")
	hub.Register(tab)
	_, err := hub.Reconnect(tab, roomID, "fp-alice")
	require.NoError(t, err)
	assert.Empty(t, a.GetRoomID())

	_, err = hub.PostMessage(roomID, a, text("old tab"))
	assert.ErrorIs(t, err, models.ErrNotMember)

	_, err = hub.PostMessage(roomID, tab, text("new tab"))
	require.NoError(t, err)
	b.next(t, models.EventMessage)

	hub.Unregister(a)
	time.Sleep(120 * time.Millisecond)
	summary, ok := hub.Room(roomID)
	require.True(t, ok, "dropping the stale socket does not end the room")
	assert.Equal(t, "active", summary.State)
}
