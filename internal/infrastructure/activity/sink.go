package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"streamfy/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sink durably writes a batch of activity records.
type Sink interface {
	Write(ctx context.Context, batch []domain.Activity) error
}

const logTypeActivity = "activity"

// ZapSink writes one structured log line per record.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("activity")}
}

func (s *ZapSink) Write(_ context.Context, batch []domain.Activity) error {
	for _, a := range batch {
		s.logger.Info("activity",
			zap.String("log_type", logTypeActivity),
			zap.String("type", string(a.Type)),
			zap.String("username", a.Username),
			zap.Any("details", a.Details),
			zap.Time("timestamp", a.Timestamp),
		)
	}
	return nil
}

// RedisSink appends records to a capped redis stream.
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisSink(client redis.Cmdable, stream string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Write(ctx context.Context, batch []domain.Activity) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range batch {
			details, err := json.Marshal(a.Details)
			if err != nil {
				return fmt.Errorf("marshal activity details: %w", err)
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.stream,
				MaxLen: s.maxLen,
				Approx: true,
				Values: map[string]interface{}{
					"type":      string(a.Type),
					"username":  a.Username,
					"details":   string(details),
					"timestamp": strconv.FormatInt(a.Timestamp.UnixMilli(), 10),
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append activity to stream %s: %w", s.stream, err)
	}
	return nil
}
