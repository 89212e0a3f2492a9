// Package postgres provides PostgreSQL persistence for multi-node
// deployments where several consumers share one instance store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/persistence/sqlbase"
)

type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	workflows *sqlbase.WorkflowRepository
	instances *sqlbase.InstanceRepository
}

// NewPersistence connects to the database and applies pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

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
