// Package cmd holds the construction helpers shared by the binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/persistence/file"
	"github.com/rbarros/cascata/pkg/persistence/postgres"
	"github.com/rbarros/cascata/pkg/persistence/sqlite"
)

// NewPersistence selects a store from the database URL scheme: postgres://
// and sqlite:// get their SQL stores, anything else is treated as a file
// root. Binaries fail fast on a store that cannot be opened.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgres.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}

		return p, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		p, err := sqlite.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
