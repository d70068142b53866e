package platform_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adaptermiddleware "pipeline-orchestrator/internal/adapters/http/middleware"
	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/infrastructure"
	"pipeline-orchestrator/internal/platform"
)

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Debug(context.Context, string, ...any) {}

type envelope[T any] struct {
	Object       T                       `json:"object"`
	Message      string                  `json:"message"`
	Notification domain.NotificationType `json:"notification_type"`
}

type testApp struct {
	*platform.App
	admin  string
	viewer string
}

func memoryConfig() infrastructure.Config {
	return infrastructure.Config{
		StoreBackend:      infrastructure.StoreMemory,
		AuthMode:          "api_key",
		SessionBuffer:     16,
		FanoutConcurrency: 4,
		SSEHeartbeat:      time.Minute,
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	app, err := platform.New(context.Background(), memoryConfig(), nopLogger{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.Start(ctx))
	t.Cleanup(cancel)

	admin := app.Services.Users.Register(context.Background(), domain.User{
		Email:       "admin@example.com",
		Permissions: []domain.Permission{{Scope: domain.ScopeServer, Type: domain.PermissionAdmin}},
	}, "s3cret")
	require.NoError(t, admin.Err)
	viewer := app.Services.Users.Add(context.Background(), domain.User{Email: "viewer@example.com", Provider: "cognito"})
	require.NoError(t, viewer.Err)
	return &testApp{App: app, admin: admin.Object.ID, viewer: viewer.Object.ID}
}

func (a *testApp) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(adaptermiddleware.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out["error"]
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "sqlite"
	_, err := platform.New(context.Background(), cfg, nopLogger{})
	assert.ErrorContains(t, err, "unsupported store backend")

	cfg = memoryConfig()
	cfg.AuthMode = "basic"
	_, err = platform.New(context.Background(), cfg, nopLogger{})
	assert.Error(t, err)
}

func TestHTTP_RequiresCallerIdentity(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, "", http.MethodGet, "/pipelines", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, "ghost", http.MethodGet, "/pipelines", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_PipelineHierarchy(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, app.admin, http.MethodPost, "/pipelines", domain.PipelineDefinition{Name: "P1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.PipelineDefinition](t, rec)
	assert.Equal(t, domain.NotificationCreated, p.Notification)
	assert.Equal(t, "PipelineDefinition "+p.Object.ID+" added successfully.", p.Message)

	rec = app.do(t, app.admin, http.MethodPost, "/pipelines/"+p.Object.ID+"/stages", domain.StageDefinition{Name: "build"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stage := decode[domain.StageDefinition](t, rec)
	assert.Equal(t, p.Object.ID, stage.Object.PipelineDefinitionID)

	rec = app.do(t, app.admin, http.MethodPost, "/pipelines/"+p.Object.ID+"/stages", domain.StageDefinition{Name: "build"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "StageDefinition with the same name exists.", errorOf(t, rec))

	rec = app.do(t, app.admin, http.MethodPost, "/stages/"+stage.Object.ID+"/jobs", domain.JobDefinition{Name: "compile"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[domain.JobDefinition](t, rec)
	assert.Equal(t, p.Object.ID, job.Object.PipelineDefinitionID)
	assert.Equal(t, stage.Object.ID, job.Object.StageDefinitionID)

	rec = app.do(t, app.admin, http.MethodGet, "/pipelines/"+p.Object.ID+"/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]domain.JobDefinition](t, rec)
	assert.Equal(t, "JobDefinitions retrieved successfully.", jobs.Message)
	require.Len(t, jobs.Object, 1)

	rec = app.do(t, app.admin, http.MethodDelete, "/jobs/"+job.Object.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JobDefinition deleted successfully.", decode[domain.JobDefinition](t, rec).Message)

	rec = app.do(t, app.admin, http.MethodGet, "/jobs/"+job.Object.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JobDefinition not found.", errorOf(t, rec))

	rec = app.do(t, app.admin, http.MethodPost, "/pipelines/missing/stages", domain.StageDefinition{Name: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_ViewerSeesOnlyPermittedPipelines(t *testing.T) {
	app := newTestApp(t)
	p1 := decode[domain.PipelineDefinition](t, app.do(t, app.admin, http.MethodPost, "/pipelines", domain.PipelineDefinition{Name: "P1"}))
	_ = app.do(t, app.admin, http.MethodPost, "/pipelines", domain.PipelineDefinition{Name: "P2"})

	rec := app.do(t, app.viewer, http.MethodGet, "/pipelines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.PipelineDefinition](t, rec).Object)

	rec = app.do(t, app.viewer, http.MethodGet, "/pipelines/"+p1.Object.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	group := app.Services.UserGroups.Add(context.Background(), domain.UserGroup{
		Name:        "p1-viewers",
		Permissions: []domain.Permission{{Scope: domain.ScopePipeline, Type: domain.PermissionViewer, PermittedEntityID: p1.Object.ID}},
	})
	require.NoError(t, group.Err)
	requested := domain.User{ID: app.viewer, UserGroupIDs: []string{group.Object.ID}}
	rec = app.do(t, app.admin, http.MethodPost, "/user-groups/"+group.Object.ID+"/assign", requested)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User assigned successfully.", decode[domain.UserGroupDTO](t, rec).Message)

	rec = app.do(t, app.viewer, http.MethodGet, "/pipelines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visible := decode[[]domain.PipelineDefinition](t, rec).Object
	require.Len(t, visible, 1)
	assert.Equal(t, "P1", visible[0].Name)

	rec = app.do(t, app.viewer, http.MethodDelete, "/pipelines/"+p1.Object.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, app.admin, http.MethodPost, "/user-groups/"+group.Object.ID+"/assign", requested)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already assigned to User Group.", errorOf(t, rec))
}

func TestHTTP_AccountAdministrationIsServerAdminOnly(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, app.viewer, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(t, app.viewer, http.MethodPost, "/user-groups", domain.UserGroup{Name: "ops"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, app.viewer, http.MethodGet, "/users/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, app.viewer, me.UserID)

	rec = app.do(t, app.admin, http.MethodPost, "/users", map[string]any{"email": "New@Example.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.User](t, rec)
	assert.Equal(t, "new@example.com", created.Object.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = app.do(t, app.admin, http.MethodPost, "/users", map[string]any{"email": "new@example.com", "password": "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, app.admin, http.MethodGet, "/users?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.User](t, rec).Object, 1)
}

func TestHTTP_MetricsEndpoint(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_orchestrator_sessions_active 0")
}

func TestHTTP_EventsStreamAuthorizedNotifications(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.Echo)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set(adaptermiddleware.HeaderUserID, app.admin)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewReader(resp.Body)
	first, err := lines.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", first)
	assert.Equal(t, 1, app.Registry.Len())

	rec := app.do(t, app.admin, http.MethodPost, "/pipelines", domain.PipelineDefinition{Name: "streamed"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var data string
	for {
		line, err := lines.ReadString('\n')
		require.NoError(t, err)
		if line == "event: PipelineDefinition\n" {
			data, err = lines.ReadString('\n')
			require.NoError(t, err)
			break
		}
	}
	require.True(t, strings.HasPrefix(data, "data: "))
	var contract struct {
		Kind             domain.EntityKind         `json:"kind"`
		Operation        string                    `json:"operation"`
		NotificationType domain.NotificationType   `json:"notification_type"`
		Result           domain.PipelineDefinition `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &contract))
	assert.Equal(t, domain.KindPipelineDefinition, contract.Kind)
	assert.Equal(t, "add", contract.Operation)
	assert.Equal(t, domain.NotificationCreated, contract.NotificationType)
	assert.Equal(t, "streamed", contract.Result.Name)
}

func TestShutdown_FlushesAndStopsIntake(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, app.Shutdown(ctx))
	assert.Error(t, app.Router.Flush(ctx))
}
