package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rbarros/cascata/pkg/cmd"
	"github.com/rbarros/cascata/pkg/log"
	"github.com/rbarros/cascata/pkg/mail"
	"github.com/rbarros/cascata/pkg/otelhelper"
	"github.com/rbarros/cascata/pkg/registry"
	"github.com/rbarros/cascata/pkg/stream"
	"github.com/rbarros/cascata/pkg/workflow"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	command := &cli.Command{
		Name:                  "cascata-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume the submission log and execute workflow instances",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "consumer-id",
				Aliases: []string{"id"},
				Usage:   "Custom consumer name within the group (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("CONSUMER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://, sqlite://, or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL for the submission log",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "stream",
				Usage:   "Redis stream holding submissions",
				Value:   "cascata:submissions",
				Sources: cli.EnvVars("STREAM"),
			},
			&cli.StringFlag{
				Name:    "group",
				Usage:   "Consumer group name",
				Value:   "cascata-workers",
				Sources: cli.EnvVars("GROUP"),
			},
			&cli.DurationFlag{
				Name:    "reclaim-idle",
				Usage:   "Lease after which pending entries are reclaimed from other consumers",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("RECLAIM_IDLE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Lifecycle event bus type (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("TRACING"),
			},
			&cli.StringFlag{
				Name:    "smtp-host",
				Usage:   "SMTP host for the send_email action",
				Sources: cli.EnvVars("SMTP_HOST"),
			},
			&cli.IntFlag{
				Name:    "smtp-port",
				Usage:   "SMTP port",
				Value:   587,
				Sources: cli.EnvVars("SMTP_PORT"),
			},
			&cli.StringFlag{
				Name:    "smtp-username",
				Usage:   "SMTP username",
				Sources: cli.EnvVars("SMTP_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "smtp-password",
				Usage:   "SMTP password",
				Sources: cli.EnvVars("SMTP_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "smtp-from",
				Usage:   "From address for outgoing mail",
				Value:   "no-reply@cascata.local",
				Sources: cli.EnvVars("SMTP_FROM"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	consumerID := command.String("consumer-id")
	if consumerID == "" {
		consumerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("cascata-worker").With("consumerId", consumerID)

	logger.InfoContext(ctx, "Initializing Cascata Worker")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, "cascata-worker")
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	eventLog, err := stream.NewRedisLog(ctx, logger, stream.Config{
		URL:         command.String("redis-url"),
		Stream:      command.String("stream"),
		Group:       command.String("group"),
		Consumer:    consumerID,
		ReclaimIdle: command.Duration("reclaim-idle"),
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := eventLog.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event log", "error", err)
		}
	}()

	transport := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     command.String("smtp-host"),
		Port:     command.Int("smtp-port"),
		Username: command.String("smtp-username"),
		Password: command.String("smtp-password"),
		From:     command.String("smtp-from"),
	}, logger)

	r := registry.NewRegistry(logger)
	registry.RegisterDefaults(r, transport, logger)

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "cascata-worker")
		if err != nil {
			return err
		}
	}

	engine := workflow.NewEngine(persistence, r, eventBus, logger)
	matcher := workflow.NewMatcher(logger)
	consumer := workflow.NewConsumer(eventLog, persistence, matcher, engine, tracer, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Cascata Worker stopped")

	return nil
}
