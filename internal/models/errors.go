package models

import "errors"

// Errors returned by the matchmaking and room lifecycle core. Callers compare
// with errors.Is; operations wrap them with context.
var (
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrNotFound         = errors.New("not found")
	ErrNotMember        = errors.New("not a member of the room")
	ErrRoomFull         = errors.New("room is full")
	ErrBanned           = errors.New("fingerprint is banned")
	ErrRateLimited      = errors.New("rate limited")
)
