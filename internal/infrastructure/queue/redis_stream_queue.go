// Package queue provides the Redis Streams backend of the sync job queue.
// Jobs are published to a stream and a consumer group feeds them into the
// local worker pool, so several server instances share one queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

const (
	// DefaultStream is the stream sync jobs are published to
	DefaultStream = "sync:jobs"
	// DefaultGroup is the consumer group of the sync workers
	DefaultGroup = "sync-workers"

	payloadField = "job"
)

// ErrMalformedMessage is returned for stream entries that do not hold a sync job
var ErrMalformedMessage = errors.New("malformed sync job message")

// JobSink accepts consumed jobs. Submit may wait for capacity.
type JobSink interface {
	Submit(ctx context.Context, job *integration.SyncJob) error
}

// RedisStreamQueue implements integration.JobQueue on a Redis stream
type RedisStreamQueue struct {
	client   redis.Cmdable
	stream   string
	group    string
	consumer string
	block    time.Duration
	maxLen   int64
	logger   *zap.Logger
}

// NewRedisStreamQueue creates a stream queue from config. The consumer name
// defaults to the host name.
func NewRedisStreamQueue(client redis.Cmdable, cfg config.QueueConfig, logger *zap.Logger) *RedisStreamQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &RedisStreamQueue{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
		block:    cfg.BlockTimeout,
		maxLen:   cfg.MaxLen,
		logger:   logger.With(zap.String("stream", cfg.Stream)),
	}
	if q.stream == "" {
		q.stream = DefaultStream
	}
	if q.group == "" {
		q.group = DefaultGroup
	}
	if q.consumer == "" {
		host, _ := os.Hostname()
		q.consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if q.block <= 0 {
		q.block = 5 * time.Second
	}
	return q
}

// Stream returns the stream name
func (q *RedisStreamQueue) Stream() string { return q.stream }

// EnsureGroup creates the consumer group and the stream if missing
func (q *RedisStreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

// Enqueue publishes a job to the stream
func (q *RedisStreamQueue) Enqueue(ctx context.Context, job *integration.SyncJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal sync job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
		args.Approx = true
	}
	id, err := q.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish sync job %s: %w", job.ID, err)
	}

	q.logger.Debug("sync job published",
		zap.String("job_id", job.ID),
		zap.String("message_id", id),
		zap.Int("records", len(job.RecordIDs)),
	)
	return nil
}

// Depth returns entries not yet delivered to the group plus entries
// delivered but not acknowledged
func (q *RedisStreamQueue) Depth(ctx context.Context) (int64, error) {
	groups, err := q.client.XInfoGroups(ctx, q.stream).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return 0, nil
		}
		return 0, fmt.Errorf("inspect stream %s: %w", q.stream, err)
	}
	for _, g := range groups {
		if g.Name == q.group {
			lag := g.Lag
			if lag < 0 {
				lag = 0
			}
			return g.Pending + lag, nil
		}
	}
	return q.client.XLen(ctx, q.stream).Result()
}

// Consume reads jobs for this consumer and submits them to sink until ctx is
// done. Entries left pending by an earlier run of this consumer are
// submitted first. An entry is acknowledged once the sink accepted it;
// malformed entries are acknowledged and dropped.
func (q *RedisStreamQueue) Consume(ctx context.Context, sink JobSink) error {
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}
	q.logger.Info("sync job consumer started",
		zap.String("group", q.group),
		zap.String("consumer", q.consumer),
	)

	// "0" replays this consumer's pending entries, ">" reads new ones
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, cursor},
			Count:    10,
			Block:    q.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("read sync job stream", zap.Error(err))
			if sleepErr := sleep(ctx, time.Second); sleepErr != nil {
				return nil
			}
			continue
		}

		delivered := 0
		for _, s := range streams {
			for _, msg := range s.Messages {
				delivered++
				if err := q.handle(ctx, sink, msg); err != nil {
					if ctx.Err() != nil || errors.Is(err, integration.ErrJobQueueClosed) {
						return nil
					}
					q.logger.Error("submit sync job", zap.String("message_id", msg.ID), zap.Error(err))
				}
			}
		}
		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
}

func (q *RedisStreamQueue) handle(ctx context.Context, sink JobSink, msg redis.XMessage) error {
	job, err := decodeJob(msg)
	if err != nil {
		q.logger.Warn("dropping malformed sync job message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return q.ack(ctx, msg.ID)
	}
	if err := sink.Submit(ctx, job); err != nil {
		return err
	}
	return q.ack(ctx, msg.ID)
}

func (q *RedisStreamQueue) ack(ctx context.Context, id string) error {
	if err := q.client.XAck(context.WithoutCancel(ctx), q.stream, q.group, id).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

func decodeJob(msg redis.XMessage) (*integration.SyncJob, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field", ErrMalformedMessage, payloadField)
	}
	var job integration.SyncJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &job, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
