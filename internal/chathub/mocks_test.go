package chathub_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/config"
	"pairchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) IsBanned(ctx context.Context, fp string) (bool, error) {
	args := m.Called(ctx, fp)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) BanUser(ctx context.Context, fp, reason string, d time.Duration) error {
	return m.Called(ctx, fp, reason, d).Error(0)
}

func (m *MockStorage) UnbanUser(ctx context.Context, fp string) error {
	return m.Called(ctx, fp).Error(0)
}

func (m *MockStorage) GetBan(ctx context.Context, fp string) (*models.Ban, error) {
	args := m.Called(ctx, fp)
	b, _ := args.Get(0).(*models.Ban)
	return b, args.Error(1)
}

func (m *MockStorage) PersistMessage(ctx context.Context, roomID string, msg models.Message) error {
	return m.Called(ctx, roomID, msg).Error(0)
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	return m.Called(ctx, room).Error(0)
}

func (m *MockStorage) CloseRoom(ctx context.Context, roomID, reason string) error {
	return m.Called(ctx, roomID, reason).Error(0)
}

func (m *MockStorage) SaveComplaint(ctx context.Context, c *models.Complaint) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockStorage) HasComplaint(ctx context.Context, reporter, target, roomID string) (bool, error) {
	args := m.Called(ctx, reporter, target, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) CountReportersSince(ctx context.Context, fp string, since time.Time) (int64, error) {
	args := m.Called(ctx, fp, since)
	return args.Get(0).(int64), args.Error(1)
}

// allowAudit lets the fire-and-forget room and message writes through.
func (m *MockStorage) allowAudit() {
	m.On("SaveRoom", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("CloseRoom", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PersistMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

// MockClient is an in-memory Client whose outbound events land in a
// buffered channel.
type MockClient struct {
	handle string
	events chan models.ServerEvent

	mu      sync.Mutex
	profile models.Profile
	roomID  string
	closed  bool
}

func newMockClient(handle string) *MockClient {
	return &MockClient{handle: handle, events: make(chan models.ServerEvent, 256)}
}

func newProfiledClient(handle, fp, name string, interests ...string) *MockClient {
	c := newMockClient(handle)
	c.profile = models.Profile{Fingerprint: fp, DisplayName: name, Interests: interests, Language: "en"}
	return c
}

// newVerifiedClient is a client whose fingerprint came from a session token.
func newVerifiedClient(handle, fp string) *MockClient {
	c := newProfiledClient(handle, fp, "")
	c.profile.Verified = true
	return c
}

func (c *MockClient) GetHandle() string { return c.handle }

func (c *MockClient) GetProfile() models.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

func (c *MockClient) SetProfile(p models.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = p
}

func (c *MockClient) GetRoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *MockClient) SetRoomID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

func (c *MockClient) GetSendChannel() chan<- models.ServerEvent { return c.events }

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// next waits for the next event of type typ, skipping others.
func (c *MockClient) next(t *testing.T, typ string) models.ServerEvent {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-c.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			require.FailNowf(t, "no event", "%s did not receive %q", c.handle, typ)
			return models.ServerEvent{}
		}
	}
}

// drain empties the event buffer and returns what it held.
func (c *MockClient) drain() []models.ServerEvent {
	var out []models.ServerEvent
	for {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// countType returns how many buffered events have type typ.
func countType(evs []models.ServerEvent, typ string) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.MatchDelay = 20 * time.Millisecond
	cfg.MatchRescanInterval = 0
	cfg.ReconnectGrace = 60 * time.Millisecond
	cfg.DrainGrace = 60 * time.Millisecond
	cfg.InactivityTimeout = 10 * time.Minute
	cfg.InactivityWarningLead = 3 * time.Minute
	cfg.SweepInterval = 0
	cfg.HistorySize = 20
	cfg.CollaboratorTimeout = 200 * time.Millisecond
	cfg.BanCheckFailOpen = true
	cfg.DefaultLanguage = "en"
	return cfg
}

func newTestHub(s *MockStorage, cfg config.Config) (*chathub.ManagerService, *chathub.MatcherService) {
	var hub *chathub.ManagerService
	var matcher *chathub.MatcherService
	if s == nil {
		hub = chathub.NewManagerService(nil, cfg, testLogger())
		matcher = chathub.NewMatcherService(hub, nil, cfg, testLogger())
	} else {
		hub = chathub.NewManagerService(s, cfg, testLogger())
		matcher = chathub.NewMatcherService(hub, s, cfg, testLogger())
	}
	return hub, matcher
}

// pair registers two clients and puts them in a room directly.
func pair(t *testing.T, hub *chathub.ManagerService) (a, b *MockClient, roomID string) {
	t.Helper()
	a = newProfiledClient("h-alice", "fp-alice", "Alice", "cats")
	b = newProfiledClient("h-bob", "fp-bob", "Bob", "dogs")
	hub.Register(a)
	hub.Register(b)
	roomID, err := hub.CreateRoom(a, b, models.MatchTypeRandom, "")
	require.NoError(t, err)
	a.drain()
	b.drain()
	return a, b, roomID
}
