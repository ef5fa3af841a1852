// Package telegram is the moderation side channel: media posted in rooms is
// relayed to an admin chat, and admins in that chat can list and close
// rooms, ban and unban fingerprints, and read live stats.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"pairchat/backend/internal/chathub"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RoomAdmin is what admin commands need from the hub.
type RoomAdmin interface {
	ActiveRooms() []chathub.RoomSummary
	CloseRoom(idOrAlias, reason string) error
	Stats() (connections, rooms int)
}

// BanStore is what admin commands need from the moderation store.
type BanStore interface {
	BanUser(ctx context.Context, fingerprint, reason string, duration time.Duration) error
	UnbanUser(ctx context.Context, fingerprint string) error
}

// Queue is what admin commands need from the matchmaker.
type Queue interface {
	Waiting() int
	Evict(fingerprint string) bool
}

// ModerationBot relays media to the admin chat and serves admin commands.
type ModerationBot struct {
	API         Sender
	Rooms       RoomAdmin
	Bans        BanStore
	Queue       Queue
	AdminChatID int64

	log *slog.Logger
	// mediaPaused stops ForwardMedia while set (/media_off).
	mediaPaused atomic.Bool
}

// NewBotAPI authorizes against the Telegram Bot API.
func NewBotAPI(token string, log *slog.Logger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize: %w", err)
	}
	bot.Debug = false
	log.Info("telegram bot authorized", "account", bot.Self.UserName)
	return bot, nil
}

// NewModerationBot creates a bot that talks to adminChatID.
func NewModerationBot(api Sender, rooms RoomAdmin, bans BanStore, queue Queue, adminChatID int64, log *slog.Logger) *ModerationBot {
	return &ModerationBot{
		API:         api,
		Rooms:       rooms,
		Bans:        bans,
		Queue:       queue,
		AdminChatID: adminChatID,
		log:         log,
	}
}

// Run handles updates until ctx is done or the channel closes.
func (b *ModerationBot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.log.Info("moderation bot started", "admin_chat", b.AdminChatID)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers admin commands sent from the admin chat. Everything
// else is ignored.
func (b *ModerationBot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.ID != b.AdminChatID || !msg.IsCommand() {
		return
	}
	reply := b.HandleCommand(ctx, msg.Command(), msg.CommandArguments())
	if reply == "" {
		return
	}
	if _, err := b.API.Send(tgbotapi.NewMessage(b.AdminChatID, reply)); err != nil {
		b.log.Warn("failed to send admin reply", "err", err)
	}
}

// HandleCommand executes one admin command and returns the reply text.
func (b *ModerationBot) HandleCommand(ctx context.Context, command, arguments string) string {
	args := strings.Fields(arguments)
	switch command {
	case "rooms":
		return b.listRooms()

	case "closeroom":
		if len(args) != 1 {
			return "usage: /closeroom <room id or alias>"
		}
		if err := b.Rooms.CloseRoom(args[0], chathub.ReasonAdmin); err != nil {
			return fmt.Sprintf("close failed: %v", err)
		}
		return "room " + args[0] + " closed"

	case "ban":
		if len(args) < 1 {
			return "usage: /ban <fingerprint> [hours] [reason]"
		}
		return b.ban(ctx, args)

	case "unban":
		if len(args) != 1 {
			return "usage: /unban <fingerprint>"
		}
		if err := b.Bans.UnbanUser(ctx, args[0]); err != nil {
			return fmt.Sprintf("unban failed: %v", err)
		}
		return args[0] + " unbanned"

	case "stats":
		conns, rooms := b.Rooms.Stats()
		queued := 0
		if b.Queue != nil {
			queued = b.Queue.Waiting()
		}
		return fmt.Sprintf("connections: %d\nwaiting: %d\nrooms: %d", conns, queued, rooms)

	case "media_on":
		b.mediaPaused.Store(false)
		return "media forwarding enabled"

	case "media_off":
		b.mediaPaused.Store(true)
		return "media forwarding paused"

	case "help", "start":
		return "/rooms, /closeroom <id|alias>, /ban <fp> [hours] [reason], /unban <fp>, /stats, /media_on, /media_off"
	}
	return ""
}

func (b *ModerationBot) ban(ctx context.Context, args []string) string {
	fp := args[0]
	duration := 24 * time.Hour
	rest := args[1:]
	if len(rest) > 0 {
		if hours, err := strconv.Atoi(rest[0]); err == nil && hours >= 0 {
			duration = time.Duration(hours) * time.Hour
			rest = rest[1:]
		}
	}
	reason := strings.Join(rest, " ")
	if reason == "" {
		reason = "banned by moderator"
	}
	if err := b.Bans.BanUser(ctx, fp, reason, duration); err != nil {
		return fmt.Sprintf("ban failed: %v", err)
	}
	evicted := false
	if b.Queue != nil {
		evicted = b.Queue.Evict(fp)
	}
	b.log.Info("fingerprint banned from telegram", "fingerprint", fp, "duration", duration, "evicted", evicted)
	if duration == 0 {
		return fp + " banned permanently"
	}
	return fmt.Sprintf("%s banned for %s", fp, duration)
}

func (b *ModerationBot) listRooms() string {
	rooms := b.Rooms.ActiveRooms()
	if len(rooms) == 0 {
		return "no active rooms"
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	var sb strings.Builder
	for _, r := range rooms {
		fmt.Fprintf(&sb, "%s [%s] %s, %d msgs, id %s\n",
			r.Alias, r.State, strings.Join(r.Members, " & "), r.MessageCount, r.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}
