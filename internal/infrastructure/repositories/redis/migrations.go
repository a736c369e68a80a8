package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, client redis.Cmdable, prefix string) error
}

func schemaVersionKey(prefix string) string {
	return prefix + "schema:version"
}

// Migrate applies every migration newer than the stored schema version.
func Migrate(ctx context.Context, client redis.Cmdable, prefix string, logger *zap.SugaredLogger) error {
	current, err := client.Get(ctx, schemaVersionKey(prefix)).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations() {
		if m.Version <= current {
			continue
		}
		logger.Infow("Running migration", "version", m.Version, "description", m.Description)

		if err := m.Up(ctx, client, prefix); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey(prefix), m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		current = m.Version
	}

	logger.Debugw("Schema is up to date", "version", current)
	return nil
}

func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "index existing dj sessions",
			Up:          backfillChannelIndex,
		},
	}
}

// backfillChannelIndex adds every stored session to the channel index so
// sessions written before the index existed stay listable.
func backfillChannelIndex(ctx context.Context, client redis.Cmdable, prefix string) error {
	pattern := sessionKey(prefix, "*")
	base := sessionKey(prefix, "")

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			ids := make([]interface{}, len(keys))
			for i, k := range keys {
				ids[i] = strings.TrimPrefix(k, base)
			}
			if err := client.SAdd(ctx, channelIndexKey(prefix), ids...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
