// Package stream implements the submission log on Redis Streams. Entries are
// appended by the API, claimed by worker consumer groups, acked once every
// matched instance has settled, and reclaimed from crashed consumers after a
// lease expires.
package stream

import (
	"context"
	"time"

	"github.com/rbarros/cascata/pkg/models"
)

// Entry is a single log record: the stream-assigned ID plus the decoded
// submission event.
type Entry struct {
	ID    string
	Event *models.Event
}

// EventLog is the transport between the submission API and the workers.
type EventLog interface {
	// Publish appends the event to the log and returns the entry ID.
	Publish(ctx context.Context, event *models.Event) (string, error)

	// Claim reads up to count new entries for this consumer, blocking up to
	// the configured block interval when the log is empty.
	Claim(ctx context.Context, count int64) ([]Entry, error)

	// Reclaim transfers entries pending on other consumers of the group for
	// longer than the lease to this consumer.
	Reclaim(ctx context.Context, count int64) ([]Entry, error)

	// Ack marks an entry as fully processed for the group.
	Ack(ctx context.Context, entryID string) error

	Close() error
}

// Config carries the connection and group coordinates for a RedisLog.
type Config struct {
	// URL is a redis:// connection string.
	URL string

	Stream   string
	Group    string
	Consumer string

	// ReclaimIdle is the lease: pending entries idle longer than this are
	// eligible for transfer to another consumer.
	ReclaimIdle time.Duration

	// Block bounds how long Claim waits for new entries.
	Block time.Duration
}
