// Package sendemail implements the send_email action.
package sendemail

import (
	"context"
	"log/slog"

	"github.com/rbarros/cascata/pkg/mail"
	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/template"
)

const (
	defaultSubject = "Notification"
	defaultBody    = "You have a new notification."
)

// Action resolves the recipient from the action config (literal "to" or a
// dotted "to_path" into the instance context), renders subject and body with
// {dotted.path} tokens, and delegates delivery to the mail transport. A
// transport failure produces a failed result, never a panic or worker crash.
type Action struct {
	transport mail.Transport
	logger    *slog.Logger
}

func NewAction(transport mail.Transport, logger *slog.Logger) *Action {
	return &Action{
		transport: transport,
		logger:    logger.With("module", "send_email_action"),
	}
}

func (a *Action) Execute(ctx context.Context, action models.Action, executionContext map[string]any) (*models.ActionResult, error) {
	to := a.resolveRecipient(action.Config, executionContext)
	if to == "" {
		return &models.ActionResult{
			Status: models.ActionFailed,
			Output: map[string]any{"error": "no recipient email found"},
		}, nil
	}

	subject, _ := action.Config["subject"].(string)
	if subject == "" {
		subject = defaultSubject
	}

	body, _ := action.Config["body"].(string)
	if body == "" {
		body = defaultBody
	}

	subject = template.Render(subject, executionContext)
	body = template.Render(body, executionContext)

	if a.transport == nil {
		return &models.ActionResult{
			Status: models.ActionFailed,
			Output: map[string]any{"error": "mail transport not configured", "to": to},
		}, nil
	}

	err := a.transport.Send(ctx, to, subject, body)
	if err != nil {
		a.logger.ErrorContext(ctx, "Email delivery failed", "to", to, "error", err)

		return &models.ActionResult{
			Status: models.ActionFailed,
			Output: map[string]any{"error": err.Error(), "to": to},
		}, nil
	}

	return &models.ActionResult{
		Status: models.ActionSucceeded,
		Output: map[string]any{"to": to, "subject": subject},
	}, nil
}

func (a *Action) resolveRecipient(config, executionContext map[string]any) string {
	if to, _ := config["to"].(string); to != "" {
		return to
	}

	toPath, _ := config["to_path"].(string)
	if toPath == "" {
		return ""
	}

	value, ok := models.ResolvePath(executionContext, toPath)
	if !ok {
		return ""
	}

	to, _ := value.(string)

	return to
}
