// Package sqlite provides SQLite persistence over the pure-Go modernc.org
// driver, suitable for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/persistence/sqlbase"
	_ "modernc.org/sqlite"
)

type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	workflows *sqlbase.WorkflowRepository
	instances *sqlbase.InstanceRepository
}

// NewPersistence opens (or creates) the database at the given URL, accepting
// both sqlite://path and a bare path, and applies pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	dsn := strings.TrimPrefix(databaseURL, "sqlite://")

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// The driver serializes writes; a single connection avoids SQLITE_BUSY
	// between the consumer loop and the API.
	database.SetMaxOpenConns(1)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		workflows: sqlbase.NewWorkflowRepository(database),
		instances: sqlbase.NewInstanceRepository(database),
	}, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				definition TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				event_id TEXT NOT NULL,
				current_step_id TEXT NOT NULL,
				status TEXT NOT NULL,
				context TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (workflow_id, event_id)
			);

			CREATE INDEX IF NOT EXISTS idx_instances_status ON workflow_instances (status);
		`,
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}
