package ports

import (
	"context"

	"streamfy/internal/core/domain"
)

// PresenceStore tracks which connection is in which room. Implementations
// must keep the room and connection indexes consistent with each other.
type PresenceStore interface {
	// Join registers the connection in the room. Re-joining the same room
	// reports joined=false; joining another room fails with ErrAlreadyInRoom.
	Join(connID domain.ConnectionID, roomID domain.RoomID, displayName string) (joined bool, err error)
	// Leave removes the connection from its room, deleting the room when it
	// becomes empty.
	Leave(connID domain.ConnectionID) (roomID domain.RoomID, member domain.Member, ok bool)
	MembersOf(roomID domain.RoomID) []domain.Member
	CountOf(roomID domain.RoomID) int
	RoomOf(connID domain.ConnectionID) (domain.RoomID, bool)
	Rooms() []domain.RoomID
}

type DJSessionRepository interface {
	Get(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error)
	Save(ctx context.Context, session *domain.DJSession) error
	ListChannels(ctx context.Context) ([]domain.ChannelID, error)
}

// KeyLocker serializes work on a key. The returned unlock must be called
// exactly once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
