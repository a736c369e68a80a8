package domain

import "errors"

var (
	ErrCapabilityDisabled = errors.New("capability disabled")
	ErrQueueFull          = errors.New("queue is full")
	ErrQueueEmpty         = errors.New("queue is empty")
	ErrDJNotFound         = errors.New("dj session not found")
	ErrTrackNotFound      = errors.New("track not found")
	ErrInvalidTrack       = errors.New("invalid track")
	ErrInvalidSettings    = errors.New("invalid dj settings")
	ErrRoomNotFound       = errors.New("room not found")
	ErrAlreadyInRoom      = errors.New("connection already in a room")
	ErrNotInRoom          = errors.New("connection not in a room")
	ErrNotInChannel       = errors.New("connection not in channel chat")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStoreUnavailable   = errors.New("session store unavailable")
)
