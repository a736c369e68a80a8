package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisDJRepository stores each session as one JSON document and keeps a
// set of channel ids for listing.
type RedisDJRepository struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisDJRepository builds a repository under prefix. A zero ttl keeps
// sessions forever.
func NewRedisDJRepository(client redis.Cmdable, prefix string, ttl time.Duration) ports.DJSessionRepository {
	return &RedisDJRepository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func sessionKey(prefix string, id domain.ChannelID) string {
	return prefix + "dj:session:" + string(id)
}

func channelIndexKey(prefix string) string {
	return prefix + "dj:channels"
}

func (r *RedisDJRepository) Get(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	data, err := r.client.Get(ctx, sessionKey(r.prefix, channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrDJNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dj session from Redis: %w", err)
	}

	var session domain.DJSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dj session: %w", err)
	}
	if session.Queue == nil {
		session.Queue = []domain.Track{}
	}
	if session.PlayedTracks == nil {
		session.PlayedTracks = []domain.PlayedTrack{}
	}
	return &session, nil
}

func (r *RedisDJRepository) Save(ctx context.Context, session *domain.DJSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal dj session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(r.prefix, session.ChannelID), data, r.ttl)
		pipe.SAdd(ctx, channelIndexKey(r.prefix), string(session.ChannelID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save dj session to Redis: %w", err)
	}
	return nil
}

// ListChannels returns indexed channels whose session still exists;
// entries whose session expired are pruned from the index.
func (r *RedisDJRepository) ListChannels(ctx context.Context) ([]domain.ChannelID, error) {
	ids, err := r.client.SMembers(ctx, channelIndexKey(r.prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dj channels from Redis: %w", err)
	}
	if len(ids) == 0 {
		return []domain.ChannelID{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(r.prefix, domain.ChannelID(id))
	}
	exists, err := r.existsEach(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ChannelID, 0, len(ids))
	var stale []interface{}
	for i, id := range ids {
		if exists[i] {
			out = append(out, domain.ChannelID(id))
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, channelIndexKey(r.prefix), stale...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *RedisDJRepository) existsEach(ctx context.Context, keys []string) ([]bool, error) {
	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Exists(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check dj sessions in Redis: %w", err)
	}
	out := make([]bool, len(cmds))
	for i, c := range cmds {
		out[i] = c.(*redis.IntCmd).Val() > 0
	}
	return out, nil
}
