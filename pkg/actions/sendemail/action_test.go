package sendemail

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/rbarros/cascata/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	to      string
	subject string
	body    string
	err     error
}

func (f *fakeTransport) Send(_ context.Context, to, subject, body string) error {
	f.to = to
	f.subject = subject
	f.body = body

	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testContext() map[string]any {
	return map[string]any{
		"template_id": "form_submitted",
		"data": map[string]any{
			"email": "a@b.com",
			"name":  "Alice",
		},
	}
}

func TestAction_Execute_LiteralRecipient(t *testing.T) {
	transport := &fakeTransport{}
	action := NewAction(transport, testLogger())

	result, err := action.Execute(context.Background(), models.Action{
		Type:   "send_email",
		Config: map[string]any{"to": "ops@corp.io", "subject": "Hi", "body": "Hello"},
	}, testContext())

	require.NoError(t, err)
	assert.Equal(t, models.ActionSucceeded, result.Status)
	assert.Equal(t, "ops@corp.io", transport.to)
	assert.Equal(t, "ops@corp.io", result.Output["to"])
}

func TestAction_Execute_RecipientFromPath(t *testing.T) {
	transport := &fakeTransport{}
	action := NewAction(transport, testLogger())

	result, err := action.Execute(context.Background(), models.Action{
		Type:   "send_email",
		Config: map[string]any{"to_path": "data.email"},
	}, testContext())

	require.NoError(t, err)
	assert.Equal(t, models.ActionSucceeded, result.Status)
	assert.Equal(t, "a@b.com", transport.to)
	assert.Equal(t, "Notification", transport.subject)
	assert.Equal(t, "You have a new notification.", transport.body)
}

func TestAction_Execute_TemplateSubstitution(t *testing.T) {
	transport := &fakeTransport{}
	action := NewAction(transport, testLogger())

	result, err := action.Execute(context.Background(), models.Action{
		Type: "send_email",
		Config: map[string]any{
			"to":      "a@b.com",
			"subject": "Welcome {data.name}",
			"body":    "Hi {data.name}, code {data.code}",
		},
	}, testContext())

	require.NoError(t, err)
	assert.Equal(t, models.ActionSucceeded, result.Status)
	assert.Equal(t, "Welcome Alice", transport.subject)
	// Unresolved tokens stay literal instead of failing the action.
	assert.Equal(t, "Hi Alice, code {data.code}", transport.body)
}

func TestAction_Execute_NoRecipient(t *testing.T) {
	transport := &fakeTransport{}
	action := NewAction(transport, testLogger())

	result, err := action.Execute(context.Background(), models.Action{
		Type:   "send_email",
		Config: map[string]any{"to_path": "data.phone"},
	}, testContext())

	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, result.Status)
	assert.Empty(t, transport.to)
}

func TestAction_Execute_TransportFailure(t *testing.T) {
	transport := &fakeTransport{err: errors.New("connection refused")}
	action := NewAction(transport, testLogger())

	result, err := action.Execute(context.Background(), models.Action{
		Type:   "send_email",
		Config: map[string]any{"to": "a@b.com"},
	}, testContext())

	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, result.Status)
	assert.Contains(t, result.Output["error"], "connection refused")
}
