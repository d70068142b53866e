package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	adaptermiddleware "pipeline-orchestrator/internal/adapters/http/middleware"
	"pipeline-orchestrator/internal/application"
	"pipeline-orchestrator/internal/domain"
)

// requireServerAdmin guards user and group administration, which is
// server-scoped.
func requireServerAdmin(kind domain.EntityKind, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !allowed(c, kind, domain.Scope{}, domain.ActionAdmin) {
			return forbidden(c)
		}
		return next(c)
	}
}

type UsersHandler struct{ service *application.UserService }

func NewUsersHandler(service *application.UserService) *UsersHandler {
	return &UsersHandler{service: service}
}

// Me returns the caller's identity with its resolved permission snapshot.
func (h *UsersHandler) Me(c echo.Context) error {
	identity, ok := adaptermiddleware.IdentityFrom(c)
	if !ok {
		return c.JSON(stdhttp.StatusUnauthorized, errorBody("missing caller identity"))
	}
	return c.JSON(stdhttp.StatusOK, identity)
}

func (h *UsersHandler) List(c echo.Context) error {
	q := paging(c, application.QueryOptions[domain.User]{})
	return respond(c, stdhttp.StatusOK, h.service.Query(c.Request().Context(), q))
}

func (h *UsersHandler) Get(c echo.Context) error {
	return respond(c, stdhttp.StatusOK, h.service.GetByID(c.Request().Context(), c.Param("id")))
}

func (h *UsersHandler) Create(c echo.Context) error {
	var req struct {
		domain.User
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	return respond(c, stdhttp.StatusCreated, h.service.Register(c.Request().Context(), req.User, req.Password))
}

func (h *UsersHandler) Update(c echo.Context) error {
	var req domain.User
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.ID = c.Param("id")
	return respond(c, stdhttp.StatusOK, h.service.Update(c.Request().Context(), req))
}

func (h *UsersHandler) Delete(c echo.Context) error {
	return respond(c, stdhttp.StatusOK, h.service.Delete(c.Request().Context(), c.Param("id")))
}

type UserGroupsHandler struct{ service *application.UserGroupService }

func NewUserGroupsHandler(service *application.UserGroupService) *UserGroupsHandler {
	return &UserGroupsHandler{service: service}
}

func (h *UserGroupsHandler) List(c echo.Context) error {
	q := paging(c, application.QueryOptions[domain.UserGroup]{})
	return respond(c, stdhttp.StatusOK, h.service.Query(c.Request().Context(), q))
}

func (h *UserGroupsHandler) ListWithUsers(c echo.Context) error {
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAllWithUsers(c.Request().Context()), nil))
}

func (h *UserGroupsHandler) Get(c echo.Context) error {
	return respond(c, stdhttp.StatusOK, h.service.GetByID(c.Request().Context(), c.Param("id")))
}

func (h *UserGroupsHandler) Create(c echo.Context) error {
	var req domain.UserGroup
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	return respond(c, stdhttp.StatusCreated, h.service.Add(c.Request().Context(), req))
}

func (h *UserGroupsHandler) Update(c echo.Context) error {
	var req domain.UserGroup
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.ID = c.Param("id")
	return respond(c, stdhttp.StatusOK, h.service.Update(c.Request().Context(), req))
}

func (h *UserGroupsHandler) Delete(c echo.Context) error {
	return respond(c, stdhttp.StatusOK, h.service.Delete(c.Request().Context(), c.Param("id")))
}

// AssignUser confirms the membership carried by the user in the body, whose
// user_group_ids must already list the group.
func (h *UserGroupsHandler) AssignUser(c echo.Context) error {
	var req domain.User
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	return respond(c, stdhttp.StatusOK, h.service.AssignUserToGroup(c.Request().Context(), req, c.Param("id")))
}

func (h *UserGroupsHandler) UnassignUser(c echo.Context) error {
	var req domain.User
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	return respond(c, stdhttp.StatusOK, h.service.UnassignUserFromGroup(c.Request().Context(), req, c.Param("id")))
}
