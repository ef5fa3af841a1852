package models

// Inbound event types (client -> server).
const (
	EventRequestMatch = "request-match"
	EventSendMessage  = "send-message"
	EventReact        = "react"
	EventUnsend       = "unsend"
	EventLeaveRoom    = "leave-room"
	EventLeaveQueue   = "leave-queue"
	EventTyping       = "typing"
	EventReconnect    = "reconnect"
	EventFetchMissed  = "fetch-missed"
	EventReport       = "report"
)

// Outbound event types (server -> client).
const (
	EventMatchFound         = "match-found"
	EventMessage            = "message"
	EventReactionUpdate     = "reaction-update"
	EventMessageUnsent      = "message-unsent"
	EventUserLeft           = "user-left"
	EventRoomClosed         = "room-closed"
	EventInactivityWarning  = "inactivity-warning"
	EventUserCount          = "user-count-update"
	EventHistory            = "history"
	EventPartnerReconnected = "partner-reconnected"
	EventQueued             = "queued"
	EventError              = "error"
)

// Match types reported in match-found.
const (
	MatchTypeInterest = "interest"
	MatchTypeRandom   = "random"
)

// ClientEvent is a single JSON frame received from a connection.
type ClientEvent struct {
	Type        string        `json:"type"`
	RoomID      string        `json:"room_id,omitempty"`
	Name        string        `json:"name,omitempty"`
	Interests   []string      `json:"interests,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Message     *MessageInput `json:"message,omitempty"`
	MessageID   string        `json:"message_id,omitempty"`
	Tag         string        `json:"tag,omitempty"`
	ReactorName string        `json:"reactor_name,omitempty"`
	IsTyping    bool          `json:"is_typing,omitempty"`
	Since       int64         `json:"since,omitempty"` // unix millis
	Reason      string        `json:"reason,omitempty"`
	Severity    string        `json:"severity,omitempty"`
}

// MessageInput is the client-supplied part of a chat message.
type MessageInput struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// ServerEvent is a single JSON frame sent to a connection. Only the fields
// relevant to Type are populated.
type ServerEvent struct {
	Type               string              `json:"type"`
	RoomID             string              `json:"room_id,omitempty"`
	PartnerName        string              `json:"partner_name,omitempty"`
	PartnerFingerprint string              `json:"partner_fingerprint,omitempty"`
	SharedInterest     *string             `json:"shared_interest,omitempty"`
	MatchType          string              `json:"match_type,omitempty"`
	Message            *Message            `json:"message,omitempty"`
	MessageID          string              `json:"message_id,omitempty"`
	Reactions          map[string][]string `json:"reactions,omitempty"`
	History            []Message           `json:"history,omitempty"`
	Note               string              `json:"note,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	Name               string              `json:"name,omitempty"`
	IsTyping           *bool               `json:"is_typing,omitempty"`
	Count              *int                `json:"count,omitempty"`
	Error              string              `json:"error,omitempty"`
}
