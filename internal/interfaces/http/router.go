package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"pipeline-orchestrator/internal/domain"
)

type Middleware struct {
	Auth          echo.MiddlewareFunc
	XRay          echo.MiddlewareFunc
	RequestLogger echo.MiddlewareFunc
	Identity      echo.MiddlewareFunc
}

type Handlers struct {
	Pipelines  *PipelinesHandler
	Stages     *StagesHandler
	Jobs       *JobsHandler
	Users      *UsersHandler
	UserGroups *UserGroupsHandler
	// Events is optional; the Lambda surface has no streaming sessions.
	Events *EventsHandler
	// Metrics is served unauthenticated when set.
	Metrics stdhttp.Handler
}

func newEcho(m Middleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if m.XRay != nil {
		e.Use(m.XRay)
	}
	if m.RequestLogger != nil {
		e.Use(m.RequestLogger)
	}
	return e
}

func NewMainRouter(h Handlers, m Middleware) *echo.Echo {
	e := newEcho(m)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(stdhttp.StatusOK) })
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}

	api := e.Group("")
	if m.Auth != nil {
		api.Use(m.Auth)
	}
	if m.Identity != nil {
		api.Use(m.Identity)
	}

	api.GET("/pipelines", h.Pipelines.List)
	api.GET("/pipelines/auto-scheduled", h.Pipelines.ListAutoScheduled)
	api.POST("/pipelines", h.Pipelines.Create)
	api.GET("/pipelines/:id", h.Pipelines.Get)
	api.PUT("/pipelines/:id", h.Pipelines.Update)
	api.DELETE("/pipelines/:id", h.Pipelines.Delete)
	api.PUT("/pipelines/:id/group", h.Pipelines.AssignToGroup)
	api.DELETE("/pipelines/:id/group", h.Pipelines.UnassignFromGroup)

	api.GET("/stages", h.Stages.List)
	api.GET("/stages/:id", h.Stages.Get)
	api.PUT("/stages/:id", h.Stages.Update)
	api.DELETE("/stages/:id", h.Stages.Delete)
	api.GET("/pipelines/:id/stages", h.Stages.ListInPipeline)
	api.POST("/pipelines/:id/stages", h.Stages.Create)

	api.GET("/jobs", h.Jobs.List)
	api.GET("/jobs/:id", h.Jobs.Get)
	api.PUT("/jobs/:id", h.Jobs.Update)
	api.DELETE("/jobs/:id", h.Jobs.Delete)
	api.GET("/pipelines/:id/jobs", h.Jobs.ListInPipeline)
	api.GET("/stages/:id/jobs", h.Jobs.ListInStage)
	api.POST("/stages/:id/jobs", h.Jobs.Create)

	api.GET("/users/me", h.Users.Me)
	users := api.Group("/users")
	users.GET("", requireServerAdmin(domain.KindUser, h.Users.List))
	users.POST("", requireServerAdmin(domain.KindUser, h.Users.Create))
	users.GET("/:id", requireServerAdmin(domain.KindUser, h.Users.Get))
	users.PUT("/:id", requireServerAdmin(domain.KindUser, h.Users.Update))
	users.DELETE("/:id", requireServerAdmin(domain.KindUser, h.Users.Delete))

	groups := api.Group("/user-groups")
	groups.GET("", requireServerAdmin(domain.KindUserGroup, h.UserGroups.List))
	groups.GET("/with-users", requireServerAdmin(domain.KindUserGroup, h.UserGroups.ListWithUsers))
	groups.POST("", requireServerAdmin(domain.KindUserGroup, h.UserGroups.Create))
	groups.GET("/:id", requireServerAdmin(domain.KindUserGroup, h.UserGroups.Get))
	groups.PUT("/:id", requireServerAdmin(domain.KindUserGroup, h.UserGroups.Update))
	groups.DELETE("/:id", requireServerAdmin(domain.KindUserGroup, h.UserGroups.Delete))
	groups.POST("/:id/assign", requireServerAdmin(domain.KindUserGroup, h.UserGroups.AssignUser))
	groups.POST("/:id/unassign", requireServerAdmin(domain.KindUserGroup, h.UserGroups.UnassignUser))

	if h.Events != nil {
		api.GET("/events", h.Events.Stream)
	}
	return e
}
