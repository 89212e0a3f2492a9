// Package stub provides placeholder executors for action types that are part
// of the registered set but have no implementation yet. They return a
// deterministic not-implemented result so transitions authored against a
// successful step outcome keep working.
package stub

import (
	"context"
	"log/slog"

	"github.com/rbarros/cascata/pkg/models"
)

type Action struct {
	actionType string
	logger     *slog.Logger
}

func NewAction(actionType string, logger *slog.Logger) *Action {
	return &Action{
		actionType: actionType,
		logger:     logger.With("module", "stub_action", "action_type", actionType),
	}
}

func (a *Action) Execute(ctx context.Context, action models.Action, _ map[string]any) (*models.ActionResult, error) {
	a.logger.InfoContext(ctx, "Action type not implemented, recording placeholder result", "config", action.Config)

	return &models.ActionResult{
		Status: models.ActionNotImplemented,
		Output: map[string]any{"action": a.actionType, "note": "not implemented yet"},
	}, nil
}
