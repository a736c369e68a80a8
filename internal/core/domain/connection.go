package domain

import "time"

type ConnectionID string
type RoomID string
type ChannelID string

// AnonymousName is shown for connections that never supplied a name.
const AnonymousName = "Anonymous"

// Connection is one client's live link to the signaling server.
type Connection struct {
	ID          ConnectionID
	UserID      UserID
	DisplayName string
	RoomID      RoomID
	ConnectedAt time.Time
}

// Member is the wire projection of a room member.
type Member struct {
	ID          ConnectionID `json:"id"`
	DisplayName string       `json:"display_name"`
}
