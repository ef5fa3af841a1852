package models

import "gorm.io/gorm"

// ChatHistory is the durable audit copy of a room message.
type ChatHistory struct {
	gorm.Model

	// MessageID is the in-room message id broadcast to clients.
	MessageID string `gorm:"type:text;not null;uniqueIndex"`
	// RoomID is the identifier of the chat room where the message was sent.
	RoomID string `gorm:"type:text;not null;index:idx_room_msg"`
	// SenderFingerprint is the fingerprint of the sender.
	SenderFingerprint string `gorm:"type:text;not null;index:idx_room_msg"`
	// Kind is one of text, image, audio, gif, sticker.
	Kind string `gorm:"type:text;not null"`
	// Payload is the text or the media reference.
	Payload string `gorm:"type:text"`
}

// NewChatHistory converts a room message into its audit row.
func NewChatHistory(msg Message) ChatHistory {
	return ChatHistory{
		MessageID:         msg.ID,
		RoomID:            msg.RoomID,
		SenderFingerprint: msg.SenderFingerprint,
		Kind:              msg.Kind,
		Payload:           msg.Payload,
	}
}
