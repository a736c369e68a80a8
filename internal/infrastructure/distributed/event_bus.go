package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelStatusEvent announces a channel live transition to the other
// server instances.
type ChannelStatusEvent struct {
	InstanceID string           `json:"instance_id"`
	ChannelID  domain.ChannelID `json:"channel_id"`
	IsLive     bool             `json:"is_live"`
	Timestamp  time.Time        `json:"timestamp"`
}

// EventBus carries channel status across instances over redis pub/sub.
// The set of live channels is also kept in a redis set so a freshly
// started instance can load it.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	liveKey    string
	logger     *zap.SugaredLogger
}

var _ ports.ChannelStatusPublisher = (*EventBus)(nil)

func NewEventBus(client redis.UniversalClient, prefix, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    prefix + "events:channel-status",
		liveKey:    prefix + "channels:live",
		logger:     logger,
	}
}

func (eb *EventBus) PublishChannelStatus(ctx context.Context, channelID domain.ChannelID, isLive bool) error {
	data, err := json.Marshal(ChannelStatusEvent{
		InstanceID: eb.instanceID,
		ChannelID:  channelID,
		IsLive:     isLive,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal channel status: %w", err)
	}

	_, err = eb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if isLive {
			pipe.SAdd(ctx, eb.liveKey, string(channelID))
		} else {
			pipe.SRem(ctx, eb.liveKey, string(channelID))
		}
		pipe.Publish(ctx, eb.channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish channel status: %w", err)
	}

	eb.logger.Debugw("Published channel status", "channel_id", channelID, "is_live", isLive)
	return nil
}

// LiveChannels returns the cluster-wide live set.
func (eb *EventBus) LiveChannels(ctx context.Context) ([]domain.ChannelID, error) {
	members, err := eb.client.SMembers(ctx, eb.liveKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load live channels: %w", err)
	}
	ids := make([]domain.ChannelID, len(members))
	for i, m := range members {
		ids[i] = domain.ChannelID(m)
	}
	return ids, nil
}

// Subscribe delivers events published by other instances to handler until
// ctx is cancelled. ready, if not nil, is closed once redis confirms the
// subscription.
func (eb *EventBus) Subscribe(ctx context.Context, ready chan<- struct{}, handler func(ChannelStatusEvent) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", eb.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eb.dispatch(msg.Payload, handler)
		}
	}
}

func (eb *EventBus) dispatch(payload string, handler func(ChannelStatusEvent) error) {
	var event ChannelStatusEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		eb.logger.Warnw("Failed to decode channel status event", "error", err)
		return
	}
	// our own publications were already applied locally
	if event.InstanceID == eb.instanceID {
		return
	}
	if err := handler(event); err != nil {
		eb.logger.Warnw("Failed to apply channel status event", "channel_id", event.ChannelID, "error", err)
	}
}
