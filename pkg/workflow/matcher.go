// Package workflow contains the matching, stepping, and consuming logic that
// turns submission events into workflow instances.
package workflow

import (
	"log/slog"

	"github.com/rbarros/cascata/pkg/models"
)

// Matcher selects which workflow definitions a submission event triggers.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With("module", "matcher")}
}

// Match returns every active definition whose trigger fires for the event.
// Events are broadcast: one submission may start several workflows, and an
// event matching nothing is dropped without error.
func (m *Matcher) Match(event *models.Event, definitions []*models.Workflow) []*models.Workflow {
	matchContext := event.MatchContext()

	var matched []*models.Workflow

	for _, def := range definitions {
		if !def.Active {
			continue
		}

		if def.Trigger.Type != event.TemplateID {
			continue
		}

		if !def.Trigger.Condition.Evaluate(matchContext) {
			continue
		}

		matched = append(matched, def)
	}

	m.logger.Debug("Matched event against definitions",
		"event_id", event.ID,
		"template_id", event.TemplateID,
		"matched", len(matched))

	return matched
}
