package chathub

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"pairchat/backend/internal/config"
	"pairchat/backend/internal/localization"
	"pairchat/backend/internal/metrics"
	"pairchat/backend/internal/models"
	"pairchat/backend/internal/storage"

	"github.com/google/uuid"
)

// RequeueFunc returns a client whose partner is gone to the waiting pool.
type RequeueFunc func(c Client)

// ManagerService is the hub: it owns connected clients, rooms and their
// recent history, and delivers every outbound event.
type ManagerService struct {
	Storage   storage.Storage
	Forwarder MediaForwarder
	Localizer *localization.Localizer

	cfg config.Config
	log *slog.Logger
	now func() time.Time

	mu                sync.Mutex
	clients           map[string]Client // by handle
	rooms             map[string]*Room  // by room id
	aliases           map[string]string // alias -> room id
	roomByFingerprint map[string]string
	graceTimers       map[string]*time.Timer // by fingerprint
	aliasSeq          uint64
	requeue           RequeueFunc
}

// NewManagerService creates a hub. s may be nil when nothing is persisted.
func NewManagerService(s storage.Storage, cfg config.Config, log *slog.Logger) *ManagerService {
	return &ManagerService{
		Storage:           s,
		Localizer:         localization.Default(),
		cfg:               cfg,
		log:               log,
		now:               time.Now,
		clients:           make(map[string]Client),
		rooms:             make(map[string]*Room),
		aliases:           make(map[string]string),
		roomByFingerprint: make(map[string]string),
		graceTimers:       make(map[string]*time.Timer),
	}
}

// SetRequeueFunc installs the callback used when a draining room releases
// its remaining member.
func (m *ManagerService) SetRequeueFunc(fn RequeueFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeue = fn
}

// SetMediaForwarder installs the moderation relay.
func (m *ManagerService) SetMediaForwarder(f MediaForwarder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Forwarder = f
}

// Register adds a connection and announces the new user count.
func (m *ManagerService) Register(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[c.GetHandle()] = c
	metrics.ConnectionsTotal.Set(float64(len(m.clients)))
	m.log.Debug("client registered", "handle", c.GetHandle())
	m.broadcastUserCountLocked()
}

// Unregister removes a connection. Room membership survives for the
// reconnect grace period; after that the member leaves the room.
func (m *ManagerService) Unregister(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle := c.GetHandle()
	if m.clients[handle] != c {
		return
	}
	delete(m.clients, handle)
	c.Close()
	metrics.ConnectionsTotal.Set(float64(len(m.clients)))
	m.log.Debug("client unregistered", "handle", handle)

	m.disconnectLocked(c)
	m.broadcastUserCountLocked()
}

// Client returns the registered client with handle, or nil.
func (m *ManagerService) Client(handle string) Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[handle]
}

// ClientCount returns the number of registered connections.
func (m *ManagerService) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Notify sends ev to c if c is still registered.
func (m *ManagerService) Notify(c Client, ev models.ServerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendLocked(c, ev)
}

// sendLocked never blocks: a full outbound buffer drops the event for that
// client only.
func (m *ManagerService) sendLocked(c Client, ev models.ServerEvent) {
	if c == nil || m.clients[c.GetHandle()] != c {
		return
	}
	select {
	case c.GetSendChannel() <- ev:
	default:
		m.log.Warn("outbound buffer full, dropping event", "handle", c.GetHandle(), "type", ev.Type)
	}
}

func (m *ManagerService) broadcastLocked(r *Room, ev models.ServerEvent, exceptFingerprint string) {
	for _, mem := range r.members {
		if mem.disconnected || mem.fingerprint == exceptFingerprint {
			continue
		}
		m.sendLocked(mem.client, ev)
	}
}

func (m *ManagerService) broadcastUserCountLocked() {
	count := len(m.clients)
	for _, c := range m.clients {
		m.sendLocked(c, models.ServerEvent{Type: models.EventUserCount, Count: &count})
	}
}

func (m *ManagerService) note(c Client, key string, args ...any) string {
	lang := m.cfg.DefaultLanguage
	if c != nil {
		if l := c.GetProfile().Language; l != "" {
			lang = l
		}
	}
	return m.Localizer.Format(lang, key, args...)
}

// resolveLocked finds a live room by id or alias.
func (m *ManagerService) resolveLocked(idOrAlias string) *Room {
	if r, ok := m.rooms[idOrAlias]; ok {
		return r
	}
	if id, ok := m.aliases[idOrAlias]; ok {
		return m.rooms[id]
	}
	return nil
}

// memberRoomLocked resolves roomID (falling back to the client's current
// room) and checks that c is a connected member of it.
func (m *ManagerService) memberRoomLocked(roomID string, c Client) (*Room, *member, error) {
	if roomID == "" {
		roomID = c.GetRoomID()
	}
	r := m.resolveLocked(roomID)
	if r == nil || r.State == RoomClosed {
		return nil, nil, fmt.Errorf("room %q: %w", roomID, models.ErrNotFound)
	}
	mem := r.memberByHandle(c.GetHandle())
	if mem == nil {
		return nil, nil, fmt.Errorf("room %s: %w", r.ID, models.ErrNotMember)
	}
	return r, mem, nil
}

var aliasUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func aliasPart(name string) string {
	s := strings.Trim(aliasUnsafe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "anon"
	}
	return s
}

// CreateRoom pairs a and b in a new room and sends both a match-found. It
// fails if either fingerprint already belongs to a room.
func (m *ManagerService) CreateRoom(a, b Client, matchType, sharedInterest string) (string, error) {
	pa, pb := a.GetProfile(), b.GetProfile()
	if pa.Fingerprint == pb.Fingerprint {
		return "", fmt.Errorf("cannot pair fingerprint with itself: %w", models.ErrValidation)
	}

	m.mu.Lock()
	for _, fp := range []string{pa.Fingerprint, pb.Fingerprint} {
		if id, ok := m.roomByFingerprint[fp]; ok {
			m.mu.Unlock()
			return "", fmt.Errorf("fingerprint %s already in room %s: %w", fp, id, models.ErrDuplicateRequest)
		}
	}
	if a.GetRoomID() != "" || b.GetRoomID() != "" {
		m.mu.Unlock()
		return "", fmt.Errorf("client already in a room: %w", models.ErrDuplicateRequest)
	}

	now := m.now()
	m.aliasSeq++
	alias := fmt.Sprintf("%s-%s-%d", aliasPart(pa.DisplayName), aliasPart(pb.DisplayName), m.aliasSeq)
	r := newRoom(uuid.New().String(), alias, m.cfg.HistorySize, now)
	r.MatchType = matchType
	r.SharedInterest = sharedInterest

	for _, pair := range []struct {
		c Client
		p models.Profile
	}{{a, pa}, {b, pb}} {
		_ = r.addMember(&member{
			fingerprint: pair.p.Fingerprint,
			name:        pair.p.DisplayName,
			interests:   pair.p.Interests,
			client:      pair.c,
		})
		m.roomByFingerprint[pair.p.Fingerprint] = r.ID
		pair.c.SetRoomID(r.ID)
	}
	r.State = RoomActive
	m.rooms[r.ID] = r
	m.aliases[alias] = r.ID
	metrics.ActiveRooms.Set(float64(len(m.rooms)))

	var shared *string
	if sharedInterest != "" {
		shared = &sharedInterest
	}
	m.sendLocked(a, models.ServerEvent{
		Type: models.EventMatchFound, RoomID: r.ID,
		PartnerName: pb.DisplayName, PartnerFingerprint: pb.Fingerprint,
		SharedInterest: shared, MatchType: matchType,
	})
	m.sendLocked(b, models.ServerEvent{
		Type: models.EventMatchFound, RoomID: r.ID,
		PartnerName: pa.DisplayName, PartnerFingerprint: pa.Fingerprint,
		SharedInterest: shared, MatchType: matchType,
	})
	m.mu.Unlock()

	m.log.Info("room created", "room_id", r.ID, "alias", alias, "match_type", matchType)

	record := &models.ChatRoom{
		RoomID:           r.ID,
		Alias:            alias,
		User1Fingerprint: pa.Fingerprint,
		User2Fingerprint: pb.Fingerprint,
		Interests:        append(append([]string{}, pa.Interests...), pb.Interests...),
		MatchType:        matchType,
		IsActive:         true,
		StartedAt:        now,
	}
	m.persist("room_store", func(ctx context.Context, s storage.Storage) error {
		return s.SaveRoom(ctx, record)
	})
	return r.ID, nil
}

func (m *ManagerService) persist(collaborator string, fn func(ctx context.Context, s storage.Storage) error) {
	if m.Storage == nil {
		return
	}
	s := m.Storage
	bestEffort(m.log, m.cfg.CollaboratorTimeout, collaborator, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func validateMessage(in models.MessageInput) error {
	if !models.IsValidKind(in.Kind) {
		return fmt.Errorf("unknown message kind %q: %w", in.Kind, models.ErrValidation)
	}
	if in.Payload == "" {
		return fmt.Errorf("empty payload: %w", models.ErrValidation)
	}
	if in.Kind == models.KindText {
		if !utf8.ValidString(in.Payload) {
			return fmt.Errorf("text is not valid UTF-8: %w", models.ErrValidation)
		}
		if utf8.RuneCountInString(in.Payload) > config.MaxTextLength {
			return fmt.Errorf("text exceeds %d characters: %w", config.MaxTextLength, models.ErrValidation)
		}
		return nil
	}
	if len(in.Payload) > config.MaxMediaPayloadBytes {
		return fmt.Errorf("media payload exceeds %d bytes: %w", config.MaxMediaPayloadBytes, models.ErrValidation)
	}
	return nil
}

// PostMessage appends a message from sender to the room history and
// broadcasts it to every connected member, sender included.
func (m *ManagerService) PostMessage(roomID string, sender Client, in models.MessageInput) (models.Message, error) {
	if err := validateMessage(in); err != nil {
		return models.Message{}, err
	}

	m.mu.Lock()
	r, mem, err := m.memberRoomLocked(roomID, sender)
	if err != nil {
		m.mu.Unlock()
		return models.Message{}, err
	}
	now := m.now()
	msg := &models.Message{
		ID:                uuid.New().String(),
		RoomID:            r.ID,
		SenderFingerprint: mem.fingerprint,
		SenderName:        mem.name,
		Kind:              in.Kind,
		Payload:           in.Payload,
		Timestamp:         now,
	}
	r.history.Append(msg)
	r.touch(now)
	out := msg.Clone()
	m.broadcastLocked(r, models.ServerEvent{Type: models.EventMessage, RoomID: r.ID, Message: &out}, "")
	forwarder := m.Forwarder
	m.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(in.Kind).Inc()

	audit := out.Clone()
	m.persist("message_store", func(ctx context.Context, s storage.Storage) error {
		return s.PersistMessage(ctx, audit.RoomID, audit)
	})
	if forwarder != nil && models.IsMedia(in.Kind) {
		bestEffort(m.log, m.cfg.CollaboratorTimeout, "media_forwarder", func(ctx context.Context) error {
			return forwarder.ForwardMedia(ctx, audit.Kind, audit.Payload, audit.SenderFingerprint)
		})
	}
	return out, nil
}

// ReactToMessage toggles the reacting member's name in the tag's reactor
// set and broadcasts the message's reactions.
func (m *ManagerService) ReactToMessage(roomID, messageID, tag string, by Client) (map[string][]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" || utf8.RuneCountInString(tag) > 32 {
		return nil, fmt.Errorf("invalid reaction tag: %w", models.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, mem, err := m.memberRoomLocked(roomID, by)
	if err != nil {
		return nil, err
	}
	msg := r.history.Find(messageID)
	if msg == nil || msg.Unsent {
		return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}
	msg.ToggleReaction(tag, mem.name)
	r.touch(m.now())

	reactions := msg.Clone().Reactions
	m.broadcastLocked(r, models.ServerEvent{
		Type: models.EventReactionUpdate, RoomID: r.ID, MessageID: msg.ID, Reactions: reactions,
	}, "")
	return reactions, nil
}

// UnsendMessage marks the sender's own message unsent, blanking its payload
// and reactions. Repeating it is a no-op.
func (m *ManagerService) UnsendMessage(roomID, messageID string, by Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, mem, err := m.memberRoomLocked(roomID, by)
	if err != nil {
		return err
	}
	msg := r.history.Find(messageID)
	if msg == nil {
		return fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}
	if msg.SenderFingerprint != mem.fingerprint {
		return fmt.Errorf("only the sender can unsend %s: %w", messageID, models.ErrValidation)
	}
	if msg.Unsent {
		return nil
	}
	msg.Unsend()
	r.touch(m.now())
	m.broadcastLocked(r, models.ServerEvent{Type: models.EventMessageUnsent, RoomID: r.ID, MessageID: msg.ID}, "")
	return nil
}

// Typing relays a typing indicator to the other member.
func (m *ManagerService) Typing(roomID string, by Client, isTyping bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, mem, err := m.memberRoomLocked(roomID, by)
	if err != nil {
		return err
	}
	m.broadcastLocked(r, models.ServerEvent{
		Type: models.EventTyping, RoomID: r.ID, Name: mem.name, IsTyping: &isTyping,
	}, mem.fingerprint)
	return nil
}

// FetchMissed sends the requester the retained messages newer than since.
func (m *ManagerService) FetchMissed(roomID string, by Client, since time.Time) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, _, err := m.memberRoomLocked(roomID, by)
	if err != nil {
		return nil, err
	}
	missed := r.history.Since(since)
	m.sendLocked(by, models.ServerEvent{Type: models.EventHistory, RoomID: r.ID, History: missed})
	return missed, nil
}

// Leave removes c from its room at the member's request.
func (m *ManagerService) Leave(c Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(c.GetProfile().Fingerprint, c.GetHandle(), false)
	return nil
}

// LeaveFingerprint removes whichever socket holds fingerprint from its room.
// It reports whether the fingerprint was in a room.
func (m *ManagerService) LeaveFingerprint(fingerprint string) bool {
	m.mu.Lock()
	_, ok := m.roomByFingerprint[fingerprint]
	if ok {
		m.leaveLocked(fingerprint, "", false)
	}
	m.mu.Unlock()
	return ok
}

// leaveLocked removes the member with fingerprint (and, when handle is set,
// bound to that handle). byDisconnect marks the member as allowed to rejoin
// while the room drains.
func (m *ManagerService) leaveLocked(fingerprint, handle string, byDisconnect bool) {
	roomID, ok := m.roomByFingerprint[fingerprint]
	if !ok {
		return
	}
	r := m.rooms[roomID]
	if r == nil {
		delete(m.roomByFingerprint, fingerprint)
		return
	}
	mem := r.memberByFingerprint(fingerprint)
	if mem == nil || (handle != "" && mem.handle() != handle) {
		return
	}

	r.removeMember(fingerprint)
	delete(m.roomByFingerprint, fingerprint)
	m.stopGraceLocked(fingerprint)
	if mem.client != nil && mem.client.GetRoomID() == r.ID {
		mem.client.SetRoomID("")
	}
	if byDisconnect {
		r.departed[fingerprint] = mem
	}
	m.log.Info("member left room", "room_id", r.ID, "fingerprint", fingerprint, "disconnect", byDisconnect)

	switch len(r.members) {
	case 1:
		rest := r.members[0]
		m.sendLocked(rest.client, models.ServerEvent{
			Type:   models.EventUserLeft,
			RoomID: r.ID,
			Name:   mem.name,
			Note:   m.note(rest.client, localization.KeyBackInQueue, mem.name),
		})
		m.startDrainLocked(r)
	case 0:
		m.closeLocked(r, ReasonEmpty)
	}
}

// startDrainLocked moves r to Draining and arms the timer that releases the
// remaining member back to the pool.
func (m *ManagerService) startDrainLocked(r *Room) {
	r.State = RoomDraining
	r.stopDrainTimer()
	roomID := r.ID
	r.drainTimer = time.AfterFunc(m.cfg.DrainGrace, func() {
		m.mu.Lock()
		c := m.finishDrainLocked(roomID)
		m.mu.Unlock()
		m.runRequeue(c)
	})
}

// finishDrainLocked closes a room that is still draining, tells the
// remaining connected member and returns it for requeue.
func (m *ManagerService) finishDrainLocked(roomID string) Client {
	r := m.rooms[roomID]
	if r == nil || r.State != RoomDraining {
		return nil
	}
	var requeue Client
	for _, mem := range r.members {
		delete(m.roomByFingerprint, mem.fingerprint)
		m.stopGraceLocked(mem.fingerprint)
		if mem.client != nil && mem.client.GetRoomID() == r.ID {
			mem.client.SetRoomID("")
		}
		if !mem.disconnected && mem.client != nil && m.clients[mem.handle()] == mem.client {
			requeue = mem.client
		}
	}
	if requeue != nil {
		m.sendLocked(requeue, models.ServerEvent{
			Type:   models.EventRoomClosed,
			RoomID: r.ID,
			Reason: ReasonPartnerLeft,
			Note:   m.note(requeue, localization.KeyClosedPartnerLeft),
		})
	}
	r.members = nil
	m.closeLocked(r, ReasonPartnerLeft)
	return requeue
}

func (m *ManagerService) runRequeue(c Client) {
	if c == nil {
		return
	}
	m.mu.Lock()
	fn := m.requeue
	m.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// CloseRoom force-closes a room by id or alias: every connected member gets
// room-closed and is evicted.
func (m *ManagerService) CloseRoom(idOrAlias, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.resolveLocked(idOrAlias)
	if r == nil {
		return fmt.Errorf("room %q: %w", idOrAlias, models.ErrNotFound)
	}
	m.evictAndCloseLocked(r, reason)
	return nil
}

func (m *ManagerService) evictAndCloseLocked(r *Room, reason string) {
	key := localization.KeyClosedAdmin
	if reason == ReasonInactivity {
		key = localization.KeyClosedInactivity
	}
	for _, mem := range r.members {
		if !mem.disconnected {
			m.sendLocked(mem.client, models.ServerEvent{
				Type:   models.EventRoomClosed,
				RoomID: r.ID,
				Reason: reason,
				Note:   m.note(mem.client, key),
			})
		}
		delete(m.roomByFingerprint, mem.fingerprint)
		m.stopGraceLocked(mem.fingerprint)
		if mem.client != nil && mem.client.GetRoomID() == r.ID {
			mem.client.SetRoomID("")
		}
	}
	r.members = nil
	m.closeLocked(r, reason)
}

// closeLocked moves r to Closed, drops its history and removes it from the
// index. Members must already be detached.
func (m *ManagerService) closeLocked(r *Room, reason string) {
	if r.State == RoomClosed {
		return
	}
	r.State = RoomClosed
	r.stopDrainTimer()
	r.history = nil
	r.departed = nil
	delete(m.rooms, r.ID)
	delete(m.aliases, r.Alias)
	metrics.ActiveRooms.Set(float64(len(m.rooms)))
	metrics.RoomsClosedTotal.WithLabelValues(reason).Inc()
	m.log.Info("room closed", "room_id", r.ID, "reason", reason)

	roomID := r.ID
	m.persist("room_store", func(ctx context.Context, s storage.Storage) error {
		return s.CloseRoom(ctx, roomID, reason)
	})
}

// Room returns a summary of a live room by id or alias.
func (m *ManagerService) Room(idOrAlias string) (RoomSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.resolveLocked(idOrAlias)
	if r == nil {
		return RoomSummary{}, false
	}
	return r.summary(), true
}

// ActiveRooms returns summaries of every room that is not closed.
func (m *ManagerService) ActiveRooms() []RoomSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomSummary, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.summary())
	}
	return out
}

// History returns a copy of a live room's retained messages.
func (m *ManagerService) History(idOrAlias string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.resolveLocked(idOrAlias)
	if r == nil || r.history == nil {
		return nil
	}
	return r.history.Since(time.Time{})
}

// RoomOf returns the room id fingerprint belongs to, or "".
func (m *ManagerService) RoomOf(fingerprint string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomByFingerprint[fingerprint]
}

// RoomStateOf returns the state of the room c is a member of.
func (m *ManagerService) RoomStateOf(c Client) (RoomState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rooms[c.GetRoomID()]
	if r == nil || r.memberByHandle(c.GetHandle()) == nil {
		return RoomClosed, false
	}
	return r.State, true
}

// PartnerOf returns the fingerprint of c's room partner.
func (m *ManagerService) PartnerOf(c Client) (roomID, partnerFingerprint string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, mem, err := m.memberRoomLocked("", c)
	if err != nil {
		return "", "", false
	}
	peer := r.peerOf(mem.fingerprint)
	if peer == nil {
		return r.ID, "", false
	}
	return r.ID, peer.fingerprint, true
}
