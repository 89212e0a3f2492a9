package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rbarros/cascata/pkg/otelhelper"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	claimBatchSize   = 16
	reclaimBatchSize = 16
	transportBackoff = 2 * time.Second
)

// Consumer drives one worker's share of the submission log: reclaim expired
// leases, claim new entries, match each event against active definitions,
// start instances, ack.
type Consumer struct {
	log         stream.EventLog
	persistence persistence.Persistence
	matcher     *Matcher
	engine      *Engine
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewConsumer(
	log stream.EventLog,
	p persistence.Persistence,
	matcher *Matcher,
	engine *Engine,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		log:         log,
		persistence: p,
		matcher:     matcher,
		engine:      engine,
		tracer:      tracer,
		logger:      logger.With("module", "consumer"),
	}
}

// Run processes the log until the context is cancelled. Transport errors back
// off and retry; entry-level failures never stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Consumer started")

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("Consumer stopping")

			return err
		}

		reclaimed, err := c.log.Reclaim(ctx, reclaimBatchSize)
		if err != nil {
			c.backoff(ctx, "reclaim", err)

			continue
		}

		c.processEntries(ctx, reclaimed)

		claimed, err := c.log.Claim(ctx, claimBatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}

			c.backoff(ctx, "claim", err)

			continue
		}

		c.processEntries(ctx, claimed)
	}
}

func (c *Consumer) processEntries(ctx context.Context, entries []stream.Entry) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		c.processEntry(ctx, entry)
	}
}

// processEntry starts an instance per matched definition and acks the entry
// once every matched instance has settled (terminal or waiting on a human
// task). Infrastructure failures leave the entry pending so another consumer
// reclaims it after the lease expires.
func (c *Consumer) processEntry(ctx context.Context, entry stream.Entry) {
	ctx, span := c.startSpan(ctx, entry)
	defer span.End()

	definitions, err := c.persistence.Workflows().Active(ctx)
	if err != nil {
		c.logger.Error("Failed to load active definitions, leaving entry pending",
			"entry_id", entry.ID, "error", err)

		return
	}

	matched := c.matcher.Match(entry.Event, definitions)

	settled := true

	for _, def := range matched {
		instance, err := c.engine.Start(ctx, def, entry.Event)
		if err != nil {
			c.logger.Error("Failed to start instance, leaving entry pending",
				"entry_id", entry.ID, "workflow_id", def.ID, "error", err)

			settled = false

			continue
		}

		span.SetAttributes(
			attribute.String(otelhelper.WorkflowIDKey, def.ID),
			attribute.String(otelhelper.InstanceIDKey, instance.ID),
		)
	}

	if !settled {
		return
	}

	if err := c.log.Ack(ctx, entry.ID); err != nil {
		// The entry is redelivered after the lease; instance creation
		// idempotency absorbs the duplicate.
		c.logger.Warn("Failed to ack entry", "entry_id", entry.ID, "error", err)

		return
	}

	c.logger.Debug("Processed entry",
		"entry_id", entry.ID, "event_id", entry.Event.ID, "matched", len(matched))
}

func (c *Consumer) startSpan(ctx context.Context, entry stream.Entry) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return otelhelper.StartSpan(ctx, c.tracer, "consumer.process_entry",
		attribute.String(otelhelper.EntryIDKey, entry.ID),
		attribute.String(otelhelper.EventIDKey, entry.Event.ID),
		attribute.String(otelhelper.TemplateIDKey, entry.Event.TemplateID),
	)
}

func (c *Consumer) backoff(ctx context.Context, op string, err error) {
	c.logger.Error("Log transport error, backing off", "op", op, "error", err)

	select {
	case <-ctx.Done():
	case <-time.After(transportBackoff):
	}
}
