package ports

import (
	"context"

	"streamfy/internal/core/domain"
)

// TrackRequest is a viewer's song submission.
type TrackRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"url"`
}

type DJService interface {
	Initialize(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error)
	GetState(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error)
	ListChannels(ctx context.Context) ([]domain.ChannelID, error)
	Enqueue(ctx context.Context, channelID domain.ChannelID, req TrackRequest, submitter domain.Identity) (*domain.DJSession, error)
	Vote(ctx context.Context, channelID domain.ChannelID, index int, voter domain.UserID) (*domain.DJSession, error)
	PlayNext(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error)
	Skip(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error)
	RemoveTrack(ctx context.Context, channelID domain.ChannelID, index int) (*domain.DJSession, error)
	ClearQueue(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error)
	UpdateSettings(ctx context.Context, channelID domain.ChannelID, patch domain.DJSettingsPatch) (*domain.DJSession, error)
}

// ActivityLogger records domain events. Record must not block the caller
// on I/O and never reports failure.
type ActivityLogger interface {
	Record(ctx context.Context, activityType domain.ActivityType, actorName string, details map[string]interface{})
}

// ChannelStatusPublisher fans channel live transitions out to other
// instances.
type ChannelStatusPublisher interface {
	PublishChannelStatus(ctx context.Context, channelID domain.ChannelID, isLive bool) error
}
