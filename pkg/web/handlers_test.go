package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/persistence/file"
	"github.com/rbarros/cascata/pkg/registry"
	"github.com/rbarros/cascata/pkg/stream"
	"github.com/rbarros/cascata/pkg/web"
	"github.com/rbarros/cascata/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLog collects published events so tests can assert what was appended.
type memoryLog struct {
	entries []stream.Entry
}

func (m *memoryLog) Publish(_ context.Context, event *models.Event) (string, error) {
	id := fmt.Sprintf("%d-0", len(m.entries)+1)
	m.entries = append(m.entries, stream.Entry{ID: id, Event: event})

	return id, nil
}

func (m *memoryLog) Claim(_ context.Context, _ int64) ([]stream.Entry, error)   { return nil, nil }
func (m *memoryLog) Reclaim(_ context.Context, _ int64) ([]stream.Entry, error) { return nil, nil }
func (m *memoryLog) Ack(_ context.Context, _ string) error                      { return nil }
func (m *memoryLog) Close() error                                               { return nil }

type okExecutor struct{}

func (okExecutor) Execute(
	_ context.Context, _ models.Action, _ map[string]any,
) (*models.ActionResult, error) {
	return &models.ActionResult{Status: models.ActionSucceeded}, nil
}

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence, *memoryLog) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	p := file.NewPersistence(t.TempDir())
	log := &memoryLog{}

	r := registry.NewRegistry(logger)
	r.Register("send_email", okExecutor{})
	r.Register("create_ticket", okExecutor{})

	engine := workflow.NewEngine(p, r, nil, logger)

	handlers, err := web.NewAPIHandlers(p, log, engine, validator.New(), r, logger)
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/submit", handlers.Submit)
	app.Get("/health", handlers.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)

	i := app.Group("/instances")
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)

	return app, p, log
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, responseBody
}

func validDefinition() map[string]any {
	return map[string]any{
		"name":            "Expense approval",
		"trigger":         map[string]any{"type": "expense-report"},
		"initial_step_id": "notify",
		"steps": map[string]any{
			"notify": map[string]any{
				"kind": "auto_action",
				"actions": []any{
					map[string]any{"type": "send_email", "config": map[string]any{"to": "ops@example.com"}},
				},
				"transitions": []any{
					map[string]any{"target_step_id": "__end__"},
				},
			},
		},
	}
}

func TestSubmitAppendsToLog(t *testing.T) {
	app, _, log := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/submit", web.SubmitRequest{
		TemplateID: "expense-report",
		OrgID:      "org-1",
		Data:       map[string]any{"amount": 42.0},
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result web.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "submitted", result.Status)
	assert.NotEmpty(t, result.SubmissionID)
	assert.NotEmpty(t, result.MessageID)

	require.Len(t, log.entries, 1)
	assert.Equal(t, "expense-report", log.entries[0].Event.TemplateID)
	assert.Equal(t, result.SubmissionID, log.entries[0].Event.ID)
}

func TestSubmitRejectsMissingTemplateID(t *testing.T) {
	app, _, log := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/submit", map[string]any{
		"data": map[string]any{"amount": 42.0},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, log.entries)
}

func TestCreateWorkflowStoresActiveDefinition(t *testing.T) {
	app, p, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", validDefinition())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	stored, err := p.Workflows().ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Expense approval", stored.Name)
}

func TestCreateWorkflowHonorsExplicitInactive(t *testing.T) {
	app, _, _ := setupTestApp(t)

	def := validDefinition()
	def["active"] = false

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", def)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.False(t, created.Active)
}

func TestCreateWorkflowRejectsUnregisteredAction(t *testing.T) {
	app, _, _ := setupTestApp(t)

	def := validDefinition()
	def["steps"].(map[string]any)["notify"].(map[string]any)["actions"] = []any{
		map[string]any{"type": "teleport"},
	}

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", def)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "teleport")
}

func TestCreateWorkflowRejectsBadTransitionTarget(t *testing.T) {
	app, _, _ := setupTestApp(t)

	def := validDefinition()
	def["steps"].(map[string]any)["notify"].(map[string]any)["transitions"] = []any{
		map[string]any{"target_step_id": "nowhere"},
	}

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/", def)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflowRejectsMalformedShape(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/", map[string]any{
		"name": "No steps here",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowsListsActiveOnly(t *testing.T) {
	app, p, _ := setupTestApp(t)

	now := time.Now().UTC()
	for _, def := range []*models.Workflow{
		{
			ID:            "wf-active",
			Name:          "Active definition",
			Trigger:       models.Trigger{Type: "expense-report"},
			InitialStepID: "start",
			Steps:         map[string]*models.Step{"start": {Kind: models.StepKindAutoAction}},
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            "wf-retired",
			Name:          "Retired definition",
			Trigger:       models.Trigger{Type: "expense-report"},
			InitialStepID: "start",
			Steps:         map[string]*models.Step{"start": {Kind: models.StepKindAutoAction}},
			Active:        false,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	} {
		require.NoError(t, p.Workflows().Save(context.Background(), def))
	}

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Workflows []models.Workflow `json:"workflows"`
		Count     int               `json:"count"`
	}

	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "wf-active", result.Workflows[0].ID)
	assert.Equal(t, 1, result.Count)

	// The retired definition is still readable directly.
	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/wf-retired", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetWorkflowNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetInstanceNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/instances/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResumeInstanceConflictWhenNotWaiting(t *testing.T) {
	app, p, _ := setupTestApp(t)

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:            "inst-1",
		WorkflowID:    "wf-1",
		EventID:       "evt-1",
		CurrentStepID: "notify",
		Status:        models.InstanceStatusCompleted,
		Context:       map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, _, err := p.Instances().Create(context.Background(), instance)
	require.NoError(t, err)

	resp, _ := doJSON(t, app, http.MethodPost, "/instances/inst-1/resume", map[string]any{
		"outcome": map[string]any{"decision": "approved"},
	})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResumeInstanceNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/instances/missing/resume", map[string]any{
		"outcome": map[string]any{"decision": "approved"},
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}
