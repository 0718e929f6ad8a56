package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/model"
)

// RedisEventSink fans a proctoring event out to the live monitor channel of
// its exam and queues it for the audit worker, in one pipelined round trip.
type RedisEventSink struct {
	rdb *redis.Client
}

// NewRedisEventSink creates a new RedisEventSink.
func NewRedisEventSink(rdb *redis.Client) *RedisEventSink {
	return &RedisEventSink{rdb: rdb}
}

func (s *RedisEventSink) Publish(ctx context.Context, ev *model.ProctoringEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID.String()), data)
	pipe.RPush(ctx, config.WorkerKey.PersistProctoringEventsQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
