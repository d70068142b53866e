package http

import (
	"errors"
	stdhttp "net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	adaptermiddleware "pipeline-orchestrator/internal/adapters/http/middleware"
	"pipeline-orchestrator/internal/application"
	"pipeline-orchestrator/internal/domain"
)

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func handleError(c echo.Context, err error, msg string) error {
	if msg == "" {
		msg = err.Error()
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(stdhttp.StatusBadRequest, errorBody(msg))
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(stdhttp.StatusNotFound, errorBody(msg))
	case errors.Is(err, domain.ErrConflict):
		return c.JSON(stdhttp.StatusConflict, errorBody(msg))
	case errors.Is(err, domain.ErrPermissionDeny):
		return c.JSON(stdhttp.StatusForbidden, errorBody(msg))
	case errors.Is(err, domain.ErrStorageUnavailable):
		return c.JSON(stdhttp.StatusServiceUnavailable, errorBody(msg))
	case errors.Is(err, domain.ErrPartialCascade):
		return c.JSON(stdhttp.StatusInternalServerError, errorBody(msg))
	default:
		return c.JSON(stdhttp.StatusInternalServerError, errorBody("internal error"))
	}
}

// respond writes res, or its error, with status on success.
func respond[T any](c echo.Context, status int, res domain.ServiceResult[T]) error {
	if res.HasError() {
		return handleError(c, res.Err, res.Message)
	}
	return c.JSON(status, res)
}

func invalidPayload(c echo.Context) error {
	return c.JSON(stdhttp.StatusBadRequest, errorBody("invalid payload"))
}

func forbidden(c echo.Context) error {
	return c.JSON(stdhttp.StatusForbidden, errorBody(domain.ErrPermissionDeny.Error()))
}

// allowed checks the caller's snapshot. A request that bypassed the identity
// middleware is never allowed.
func allowed(c echo.Context, kind domain.EntityKind, scope domain.Scope, action domain.Action) bool {
	identity, ok := adaptermiddleware.IdentityFrom(c)
	if !ok {
		return false
	}
	return application.Allows(identity, kind, scope, action)
}

// paging reads ?skip= and ?limit=; malformed or negative values mean no paging.
func paging[T any](c echo.Context, q application.QueryOptions[T]) application.QueryOptions[T] {
	if n, err := strconv.Atoi(c.QueryParam("skip")); err == nil && n > 0 {
		q.Skip = n
	}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		q.Limit = n
	}
	return q
}

// page applies ?skip= and ?limit= to an already filtered list.
func page[T any](c echo.Context, res domain.ServiceResult[[]T], visible func(T) bool) domain.ServiceResult[[]T] {
	if res.HasError() {
		return res
	}
	res.Object = application.ApplyQuery(res.Object, paging(c, application.QueryOptions[T]{Filter: visible}))
	return res
}
