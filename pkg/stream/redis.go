package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rbarros/cascata/pkg/models"
)

const (
	defaultStream      = "cascata:submissions"
	defaultGroup       = "cascata-workers"
	defaultReclaimIdle = 30 * time.Second
	defaultBlock       = 5 * time.Second

	// maxStreamLength caps the stream with approximate trimming on XADD.
	maxStreamLength = 10000
)

// RedisLog is the Redis Streams implementation of EventLog. One consumer
// group shares the stream; each worker process is a named consumer within it.
type RedisLog struct {
	client      *redis.Client
	logger      *slog.Logger
	stream      string
	group       string
	consumer    string
	reclaimIdle time.Duration
	block       time.Duration

	// reclaimCursor persists the XAUTOCLAIM scan position between calls.
	reclaimCursor string
}

// NewRedisLog connects to Redis, creates the stream and consumer group if
// missing, and returns a log bound to the configured consumer name.
func NewRedisLog(ctx context.Context, logger *slog.Logger, cfg Config) (*RedisLog, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	l := &RedisLog{
		client:        client,
		logger:        logger.With("module", "stream", "consumer", cfg.Consumer),
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumer:      cfg.Consumer,
		reclaimIdle:   cfg.ReclaimIdle,
		block:         cfg.Block,
		reclaimCursor: "0-0",
	}

	if l.stream == "" {
		l.stream = defaultStream
	}

	if l.group == "" {
		l.group = defaultGroup
	}

	if l.reclaimIdle <= 0 {
		l.reclaimIdle = defaultReclaimIdle
	}

	if l.block <= 0 {
		l.block = defaultBlock
	}

	if err := l.ensureGroup(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// ensureGroup creates the consumer group at the start of the stream,
// creating the stream itself when absent. Concurrent workers racing on
// startup see BUSYGROUP, which is fine.
func (l *RedisLog) ensureGroup(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.stream, l.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", l.group, err)
	}

	return nil
}

func (l *RedisLog) Publish(ctx context.Context, event *models.Event) (string, error) {
	fields, err := encodeEvent(event)
	if err != nil {
		return "", err
	}

	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: maxStreamLength,
		Approx: true,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to stream %s: %w", l.stream, err)
	}

	return id, nil
}

func (l *RedisLog) Claim(ctx context.Context, count int64) ([]Entry, error) {
	streams, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: l.consumer,
		Streams:  []string{l.stream, ">"},
		Count:    count,
		Block:    l.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("read group %s: %w", l.group, err)
	}

	var entries []Entry

	for _, s := range streams {
		entries = append(entries, l.decodeMessages(s.Messages)...)
	}

	return entries, nil
}

func (l *RedisLog) Reclaim(ctx context.Context, count int64) ([]Entry, error) {
	messages, cursor, err := l.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   l.stream,
		Group:    l.group,
		Consumer: l.consumer,
		MinIdle:  l.reclaimIdle,
		Start:    l.reclaimCursor,
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("autoclaim on %s: %w", l.stream, err)
	}

	l.reclaimCursor = cursor
	if l.reclaimCursor == "" {
		l.reclaimCursor = "0-0"
	}

	entries := l.decodeMessages(messages)
	if len(entries) > 0 {
		l.logger.Info("Reclaimed pending entries from expired leases", "count", len(entries))
	}

	return entries, nil
}

func (l *RedisLog) Ack(ctx context.Context, entryID string) error {
	if err := l.client.XAck(ctx, l.stream, l.group, entryID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", entryID, err)
	}

	return nil
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}

// decodeMessages converts stream messages to entries. Undecodable messages
// are logged and skipped without ack, so they stay pending and visible.
func (l *RedisLog) decodeMessages(messages []redis.XMessage) []Entry {
	entries := make([]Entry, 0, len(messages))

	for _, msg := range messages {
		event, err := decodeEvent(msg.Values)
		if err != nil {
			l.logger.Warn("Skipping undecodable stream entry", "entry_id", msg.ID, "error", err)

			continue
		}

		entries = append(entries, Entry{ID: msg.ID, Event: event})
	}

	return entries
}
