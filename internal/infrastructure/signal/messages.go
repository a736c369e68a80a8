package signal

import (
	"encoding/json"

	"streamfy/internal/core/domain"
)

// Inbound message types.
const (
	TypeJoinRoom           = "join-room"
	TypeLeaveRoom          = "leave-room"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeICECandidate       = "ice-candidate"
	TypeChat               = "chat"
	TypeReaction           = "reaction"
	TypeRequestViewerCount = "request-viewer-count"
	TypeChannelGoLive      = "channel-go-live"
	TypeChannelStopLive    = "channel-stop-live"
	TypeJoinChannel        = "join-channel"
	TypeLeaveChannel       = "leave-channel"
	TypeChannelMessage     = "channel-message"
)

// Outbound message types. chat, reaction and the signaling kinds reuse
// their inbound names.
const (
	TypeWelcome             = "welcome"
	TypeMemberList          = "member-list"
	TypeMemberJoined        = "member-joined"
	TypeMemberLeft          = "member-left"
	TypeViewerCount         = "viewer-count"
	TypeChannelStatusChange = "channel-status-change"
	TypeError               = "error"
)

// ClientMessage is the inbound envelope. Which fields are meaningful
// depends on Type.
type ClientMessage struct {
	Type        string              `json:"type"`
	RoomID      domain.RoomID       `json:"room_id,omitempty"`
	DisplayName string              `json:"display_name,omitempty"`
	Target      domain.ConnectionID `json:"target,omitempty"`
	Payload     json.RawMessage     `json:"payload,omitempty"`
	Text        string              `json:"text,omitempty"`
	Emoji       string              `json:"emoji,omitempty"`
	ChannelID   domain.ChannelID    `json:"channel_id,omitempty"`
}

type WelcomeMessage struct {
	Type string              `json:"type"`
	ID   domain.ConnectionID `json:"id"`
}

type MemberListMessage struct {
	Type    string          `json:"type"`
	RoomID  domain.RoomID   `json:"room_id"`
	Members []domain.Member `json:"members"`
}

type MemberEventMessage struct {
	Type        string              `json:"type"`
	ID          domain.ConnectionID `json:"id"`
	DisplayName string              `json:"display_name"`
}

type ViewerCountMessage struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"room_id"`
	Count  int           `json:"count"`
}

type ChatMessage struct {
	Type        string              `json:"type"`
	RoomID      domain.RoomID       `json:"room_id"`
	From        domain.ConnectionID `json:"from"`
	DisplayName string              `json:"display_name"`
	Text        string              `json:"text"`
	Timestamp   int64               `json:"timestamp"`
}

type ReactionMessage struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"room_id"`
	Emoji       string        `json:"emoji"`
	DisplayName string        `json:"display_name"`
}

// SignalMessage is a relayed offer, answer or ice-candidate. Payload is
// forwarded byte for byte.
type SignalMessage struct {
	Type    string              `json:"type"`
	From    domain.ConnectionID `json:"from"`
	Payload json.RawMessage     `json:"payload"`
}

// ChannelChatMessage is chat scoped to a channel's chat group rather than
// a stream room.
type ChannelChatMessage struct {
	Type        string              `json:"type"`
	ChannelID   domain.ChannelID    `json:"channel_id"`
	From        domain.ConnectionID `json:"from"`
	DisplayName string              `json:"display_name"`
	Text        string              `json:"text"`
	Timestamp   int64               `json:"timestamp"`
}

type ChannelStatusMessage struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channel_id"`
	IsLive    bool             `json:"is_live"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func isSignalKind(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}
