package main

import (
	"context"
	"os"

	"github.com/rbarros/cascata/pkg/cmd"
	"github.com/rbarros/cascata/pkg/log"
	"github.com/rbarros/cascata/pkg/mail"
	"github.com/rbarros/cascata/pkg/registry"
	"github.com/rbarros/cascata/pkg/stream"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "cascata-api",
		Usage:                 "Accept submissions and manage workflow definitions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "smtp-host",
				Usage:   "SMTP host for the send_email action (resume path)",
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
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Cascata API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			// The API only appends to the log, so group and consumer name
			// stay defaulted.
			eventLog, err := stream.NewRedisLog(ctx, logger, stream.Config{
				URL:      command.String("redis-url"),
				Stream:   command.String("stream"),
				Consumer: "api",
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := eventLog.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event log", "error", err)
				}
			}()

			// Resume runs the suspended step's actions in-process, so the API
			// carries the same action set as the workers.
			transport := mail.NewSMTPTransport(mail.SMTPConfig{
				Host:     command.String("smtp-host"),
				Port:     command.Int("smtp-port"),
				Username: command.String("smtp-username"),
				Password: command.String("smtp-password"),
				From:     command.String("smtp-from"),
			}, logger)

			r := registry.NewRegistry(logger)
			registry.RegisterDefaults(r, transport, logger)

			api, err := NewAPI(logger, persistence, eventLog, r)
			if err != nil {
				return err
			}

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
