package registry

import (
	"log/slog"

	"github.com/rbarros/cascata/pkg/actions/sendemail"
	"github.com/rbarros/cascata/pkg/actions/stub"
	"github.com/rbarros/cascata/pkg/mail"
)

// Built-in action types.
const (
	ActionSendEmail    = "send_email"
	ActionCreateTicket = "create_ticket"
	ActionUpdateTicket = "update_ticket"
	ActionCreateTask   = "create_task"
	ActionUpdateTask   = "update_task"
	ActionWebhook      = "webhook"
)

// RegisterDefaults wires the built-in action set: send_email over the given
// transport, and the remaining types as deterministic not-implemented stubs.
func RegisterDefaults(r *Registry, transport mail.Transport, logger *slog.Logger) {
	r.Register(ActionSendEmail, sendemail.NewAction(transport, logger))

	for _, actionType := range []string{
		ActionCreateTicket,
		ActionUpdateTicket,
		ActionCreateTask,
		ActionUpdateTask,
		ActionWebhook,
	} {
		r.Register(actionType, stub.NewAction(actionType, logger))
	}
}
