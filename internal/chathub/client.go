package chathub

import "pairchat/backend/internal/models"

// Client is the interface for any type of connection (e.g., WebSocket).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetHandle returns the per-socket connection handle. A reconnecting user
	// gets a new handle; identity across sockets is the profile fingerprint.
	GetHandle() string
	// GetProfile returns the fingerprint, display name, interests and language
	// the connection last announced.
	GetProfile() models.Profile
	// SetProfile replaces the connection's profile. It is called by the
	// MatcherService on a match request and by the hub on reconnect.
	SetProfile(models.Profile)
	// GetRoomID returns the identifier of the chat room the client is currently in.
	GetRoomID() string
	// SetRoomID assigns the client to a specific chat room, or clears it with "".
	SetRoomID(string)

	// GetSendChannel returns the channel to which the ManagerService (hub) sends
	// events intended for this specific client. It is a send-only channel.
	GetSendChannel() chan<- models.ServerEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's outbound channel. The hub calls it once
	// the client is unregistered.
	Close()
}
