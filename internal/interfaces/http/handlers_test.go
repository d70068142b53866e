package http

import (
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adaptermiddleware "pipeline-orchestrator/internal/adapters/http/middleware"
	"pipeline-orchestrator/internal/application"
	"pipeline-orchestrator/internal/domain"
)

func newContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(stdhttp.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandleError_MapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidInput, stdhttp.StatusBadRequest},
		{domain.ErrNotFound, stdhttp.StatusNotFound},
		{domain.ErrConflict, stdhttp.StatusConflict},
		{domain.ErrPermissionDeny, stdhttp.StatusForbidden},
		{fmt.Errorf("%w: timeout", domain.ErrStorageUnavailable), stdhttp.StatusServiceUnavailable},
		{domain.ErrPartialCascade, stdhttp.StatusInternalServerError},
		{errors.New("boom"), stdhttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, rec := newContext("/")
		require.NoError(t, handleError(c, tc.err, "msg"))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}

	c, rec := newContext("/")
	require.NoError(t, handleError(c, errors.New("driver detail"), ""))
	assert.NotContains(t, rec.Body.String(), "driver detail")
}

func TestRespond_UsesResultMessageOnFailure(t *testing.T) {
	c, rec := newContext("/")
	res := domain.Failed(domain.JobDefinition{}, domain.ErrConflict, "JobDefinition with the same name exists.")
	require.NoError(t, respond(c, stdhttp.StatusCreated, res))
	assert.Equal(t, stdhttp.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"JobDefinition with the same name exists."}`, rec.Body.String())
}

func TestPaging(t *testing.T) {
	c, _ := newContext("/pipelines?skip=1&limit=2")
	q := paging(c, application.QueryOptions[int]{})
	assert.Equal(t, 1, q.Skip)
	assert.Equal(t, 2, q.Limit)

	c, _ = newContext("/pipelines?skip=-3&limit=many")
	q = paging(c, application.QueryOptions[int]{})
	assert.Zero(t, q.Skip)
	assert.Zero(t, q.Limit)

	c, _ = newContext("/jobs?limit=2")
	res := page(c, domain.Succeeded([]int{1, 2, 3, 4}, domain.NotificationNone, "ok"), func(n int) bool { return n%2 == 0 })
	assert.Equal(t, []int{2, 4}, res.Object)
}

func TestAllowed_RequiresIdentity(t *testing.T) {
	c, _ := newContext("/")
	assert.False(t, allowed(c, domain.KindPipelineDefinition, domain.Scope{PipelineID: "p1"}, domain.ActionView))

	adaptermiddleware.WithIdentity(c, domain.Identity{UserID: "u1", Permissions: []domain.Permission{
		{Scope: domain.ScopePipeline, Type: domain.PermissionViewer, PermittedEntityID: "p1"},
	}})
	assert.True(t, allowed(c, domain.KindPipelineDefinition, domain.Scope{PipelineID: "p1"}, domain.ActionView))
	assert.False(t, allowed(c, domain.KindPipelineDefinition, domain.Scope{PipelineID: "p1"}, domain.ActionAdmin))
	assert.False(t, allowed(c, domain.KindUser, domain.Scope{}, domain.ActionView))
}

func TestRequireServerAdmin(t *testing.T) {
	h := requireServerAdmin(domain.KindUserGroup, func(c echo.Context) error { return c.NoContent(stdhttp.StatusNoContent) })

	c, rec := newContext("/user-groups")
	adaptermiddleware.WithIdentity(c, domain.Identity{UserID: "u1"})
	require.NoError(t, h(c))
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	c, rec = newContext("/user-groups")
	adaptermiddleware.WithIdentity(c, domain.Identity{UserID: "u2", Permissions: []domain.Permission{{Scope: domain.ScopeServer, Type: domain.PermissionAdmin}}})
	require.NoError(t, h(c))
	assert.Equal(t, stdhttp.StatusNoContent, rec.Code)
}
