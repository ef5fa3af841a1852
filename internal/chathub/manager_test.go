package chathub_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func text(s string) models.MessageInput {
	return models.MessageInput{Kind: models.KindText, Payload: s}
}

func TestManager_RegisterBroadcastsUserCount(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b := newMockClient("a"), newMockClient("b")

	hub.Register(a)
	ev := a.next(t, models.EventUserCount)
	require.NotNil(t, ev.Count)
	assert.Equal(t, 1, *ev.Count)

	hub.Register(b)
	ev = a.next(t, models.EventUserCount)
	assert.Equal(t, 2, *ev.Count)

	hub.Unregister(b)
	ev = a.next(t, models.EventUserCount)
	assert.Equal(t, 1, *ev.Count)
	assert.Nil(t, hub.Client("b"))
	assert.True(t, b.closed)
}

func TestManager_CreateRoomNotifiesBoth(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a := newProfiledClient("h-a", "fp-a", "Alice Smith")
	b := newProfiledClient("h-b", "fp-b", "Bob")
	hub.Register(a)
	hub.Register(b)

	roomID, err := hub.CreateRoom(a, b, models.MatchTypeInterest, "cats")
	require.NoError(t, err)

	evA := a.next(t, models.EventMatchFound)
	assert.Equal(t, roomID, evA.RoomID)
	assert.Equal(t, "Bob", evA.PartnerName)
	require.NotNil(t, evA.SharedInterest)
	assert.Equal(t, "cats", *evA.SharedInterest)
	evB := b.next(t, models.EventMatchFound)
	assert.Equal(t, "Alice Smith", evB.PartnerName)

	summary, ok := hub.Room(roomID)
	require.True(t, ok)
	assert.Equal(t, "active", summary.State)
	assert.True(t, strings.HasPrefix(summary.Alias, "alice_smith-bob-"))

	byAlias, ok := hub.Room(summary.Alias)
	require.True(t, ok)
	assert.Equal(t, roomID, byAlias.ID)
}

func TestManager_MembershipNeverExceedsTwo(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, _, _ := pair(t, hub)
	c := newProfiledClient("h-carol", "fp-carol", "Carol")
	hub.Register(c)

	_, err := hub.CreateRoom(a, c, models.MatchTypeRandom, "")
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)

	_, err = hub.CreateRoom(c, c, models.MatchTypeRandom, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	for _, r := range hub.ActiveRooms() {
		assert.LessOrEqual(t, len(r.Fingerprints), 2)
	}
	assert.Len(t, hub.ActiveRooms(), 1)
}

func TestManager_PostMessage(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	msg, err := hub.PostMessage(roomID, a, text("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	got := b.next(t, models.EventMessage)
	require.NotNil(t, got.Message)
	assert.Equal(t, "hello", got.Message.Payload)
	assert.Equal(t, msg.ID, got.Message.ID)
	assert.Equal(t, "fp-alice", got.Message.SenderFingerprint)

	echo := a.next(t, models.EventMessage)
	assert.Equal(t, msg.ID, echo.Message.ID)

	history := hub.History(roomID)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Payload)
}

func TestManager_PostMessageValidation(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, _, roomID := pair(t, hub)
	outsider := newProfiledClient("h-x", "fp-x", "X")
	hub.Register(outsider)

	_, err := hub.PostMessage(roomID, outsider, text("hi"))
	assert.ErrorIs(t, err, models.ErrNotMember)

	_, err = hub.PostMessage("no-such-room", a, text("hi"))
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = hub.PostMessage(roomID, a, models.MessageInput{Kind: "video", Payload: "x"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = hub.PostMessage(roomID, a, text(""))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = hub.PostMessage(roomID, a, text(strings.Repeat("a", 2001)))
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.Empty(t, hub.History(roomID))
}

func TestManager_HistoryIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 3
	hub, _ := newTestHub(nil, cfg)
	a, _, roomID := pair(t, hub)

	for _, s := range []string{"1", "2", "3", "4", "5"} {
		_, err := hub.PostMessage(roomID, a, text(s))
		require.NoError(t, err)
	}
	history := hub.History(roomID)
	require.Len(t, history, 3)
	assert.Equal(t, "3", history[0].Payload)
	assert.Equal(t, "5", history[2].Payload)
}

func TestManager_PersistsAndForwardsMedia(t *testing.T) {
	ms := new(MockStorage)
	persisted := make(chan models.Message, 4)
	ms.On("PersistMessage", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { persisted <- args.Get(2).(models.Message) }).
		Return(nil)
	ms.allowAudit()
	hub, _ := newTestHub(ms, testConfig())
	fwd := &recordingForwarder{}
	hub.SetMediaForwarder(fwd)
	a, _, roomID := pair(t, hub)

	_, err := hub.PostMessage(roomID, a, text("hi"))
	require.NoError(t, err)
	_, err = hub.PostMessage(roomID, a, models.MessageInput{Kind: models.KindImage, Payload: "https://example.com/cat.png"})
	require.NoError(t, err)

	payloads := map[string]bool{}
	for range 2 {
		select {
		case m := <-persisted:
			assert.Equal(t, roomID, m.RoomID)
			payloads[m.Payload] = true
		case <-time.After(time.Second):
			t.Fatal("message not persisted")
		}
	}
	assert.True(t, payloads["hi"])
	assert.Eventually(t, func() bool { return fwd.count() == 1 }, time.Second, 10*time.Millisecond)
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	assert.Equal(t, models.KindImage, fwd.calls[0].kind)
	assert.Equal(t, "fp-alice", fwd.calls[0].fingerprint)
}

func TestManager_ReactionToggleLaw(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	msg, err := hub.PostMessage(roomID, a, text("hello"))
	require.NoError(t, err)

	reactions, err := hub.ReactToMessage(roomID, msg.ID, "❤️", b)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"❤️": {"Bob"}}, reactions)

	ev := a.next(t, models.EventReactionUpdate)
	assert.Equal(t, msg.ID, ev.MessageID)

	reactions, err = hub.ReactToMessage(roomID, msg.ID, "❤️", b)
	require.NoError(t, err)
	assert.Empty(t, reactions)
	assert.Nil(t, hub.History(roomID)[0].Reactions)

	_, err = hub.ReactToMessage(roomID, "missing", "👍", b)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestManager_Unsend(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	msg, err := hub.PostMessage(roomID, a, text("oops"))
	require.NoError(t, err)
	_, err = hub.ReactToMessage(roomID, msg.ID, "👍", b)
	require.NoError(t, err)

	assert.ErrorIs(t, hub.UnsendMessage(roomID, msg.ID, b), models.ErrValidation)

	require.NoError(t, hub.UnsendMessage(roomID, msg.ID, a))
	ev := b.next(t, models.EventMessageUnsent)
	assert.Equal(t, msg.ID, ev.MessageID)

	stored := hub.History(roomID)[0]
	assert.True(t, stored.Unsent)
	assert.Empty(t, stored.Payload)
	assert.Nil(t, stored.Reactions)
	assert.Equal(t, msg.ID, stored.ID)

	b.drain()
	require.NoError(t, hub.UnsendMessage(roomID, msg.ID, a))
	assert.Zero(t, countType(b.drain(), models.EventMessageUnsent))

	_, err = hub.ReactToMessage(roomID, msg.ID, "👍", b)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestManager_TypingGoesToPartnerOnly(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	require.NoError(t, hub.Typing(roomID, a, true))
	ev := b.next(t, models.EventTyping)
	assert.Equal(t, "Alice", ev.Name)
	require.NotNil(t, ev.IsTyping)
	assert.True(t, *ev.IsTyping)
	assert.Zero(t, countType(a.drain(), models.EventTyping))
}

func TestManager_FetchMissed(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	_, err := hub.PostMessage(roomID, a, text("first"))
	require.NoError(t, err)
	cut := time.Now()
	time.Sleep(2 * time.Millisecond)
	_, err = hub.PostMessage(roomID, a, text("second"))
	require.NoError(t, err)
	b.drain()

	missed, err := hub.FetchMissed(roomID, b, cut)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, "second", missed[0].Payload)

	ev := b.next(t, models.EventHistory)
	assert.Len(t, ev.History, 1)
	assert.Zero(t, countType(a.drain(), models.EventHistory))
}

func TestManager_LeaveDrainsThenRequeues(t *testing.T) {
	hub, matcher := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	require.NoError(t, hub.Leave(a))
	assert.Empty(t, a.GetRoomID())

	ev := b.next(t, models.EventUserLeft)
	assert.Equal(t, "Alice", ev.Name)
	assert.Contains(t, ev.Note, "back in the queue")

	summary, ok := hub.Room(roomID)
	require.True(t, ok)
	assert.Equal(t, "draining", summary.State)

	closed := b.next(t, models.EventRoomClosed)
	assert.Equal(t, chathub.ReasonPartnerLeft, closed.Reason)
	assert.Equal(t, "This chat has ended. Looking for someone new.", closed.Note)
	b.next(t, models.EventQueued)
	_, ok = hub.Room(roomID)
	assert.False(t, ok)
	assert.Empty(t, b.GetRoomID())
	assert.True(t, matcher.Pool.Contains("h-bob"))
	assert.Zero(t, countType(a.drain(), models.EventUserLeft))
}

func TestManager_BothLeaveClosesRoom(t *testing.T) {
	hub, matcher := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)

	require.NoError(t, hub.Leave(a))
	require.NoError(t, hub.Leave(b))

	_, ok := hub.Room(roomID)
	assert.False(t, ok)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, matcher.Pool.Len())
}

func TestManager_CloseRoomByAlias(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	summary, _ := hub.Room(roomID)

	require.NoError(t, hub.CloseRoom(summary.Alias, chathub.ReasonAdmin))
	for _, c := range []*MockClient{a, b} {
		ev := c.next(t, models.EventRoomClosed)
		assert.Equal(t, chathub.ReasonAdmin, ev.Reason)
		assert.Empty(t, c.GetRoomID())
	}
	assert.Empty(t, hub.ActiveRooms())
	assert.ErrorIs(t, hub.CloseRoom(roomID, chathub.ReasonAdmin), models.ErrNotFound)
	assert.Empty(t, hub.RoomOf("fp-alice"))
}

func TestManager_InactivityWarningFiresOnce(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	start := time.Now()

	res := hub.Sweep(start.Add(8 * time.Minute))
	assert.Equal(t, 1, res.Warned)
	a.next(t, models.EventInactivityWarning)
	b.next(t, models.EventInactivityWarning)

	res = hub.Sweep(start.Add(9 * time.Minute))
	assert.Zero(t, res.Warned)
	assert.Zero(t, countType(a.drain(), models.EventInactivityWarning))

	_, err := hub.PostMessage(roomID, a, text("still here"))
	require.NoError(t, err)
	res = hub.Sweep(time.Now().Add(8 * time.Minute))
	assert.Equal(t, 1, res.Warned)
}

func TestManager_InactivitySweepCloses(t *testing.T) {
	hub, _ := newTestHub(nil, testConfig())
	a, b, roomID := pair(t, hub)
	_, err := hub.PostMessage(roomID, a, text("hello"))
	require.NoError(t, err)

	res := hub.Sweep(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 1, res.Closed)
	for _, c := range []*MockClient{a, b} {
		ev := c.next(t, models.EventRoomClosed)
		assert.Equal(t, chathub.ReasonInactivity, ev.Reason)
	}
	_, ok := hub.Room(roomID)
	assert.False(t, ok)
	assert.Nil(t, hub.History(roomID))
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = 5 * time.Millisecond
	hub, _ := newTestHub(nil, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type forwardCall struct {
	kind, payload, fingerprint string
}

type recordingForwarder struct {
	mu    sync.Mutex
	calls []forwardCall
}

func (f *recordingForwarder) ForwardMedia(_ context.Context, kind, payload, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, forwardCall{kind, payload, fingerprint})
	return nil
}

func (f *recordingForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
