package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	adaptermiddleware "pipeline-orchestrator/internal/adapters/http/middleware"
	"pipeline-orchestrator/internal/ports"
	"pipeline-orchestrator/internal/realtime"
)

// EventsHandler opens a notification session for the caller and streams the
// contracts routed to it as server-sent events.
type EventsHandler struct {
	registry  *realtime.Registry
	transport *realtime.SSETransport
	logger    ports.Logger
}

func NewEventsHandler(registry *realtime.Registry, transport *realtime.SSETransport, logger ports.Logger) *EventsHandler {
	return &EventsHandler{registry: registry, transport: transport, logger: logger}
}

func (h *EventsHandler) Stream(c echo.Context) error {
	identity, ok := adaptermiddleware.IdentityFrom(c)
	if !ok {
		return c.JSON(stdhttp.StatusUnauthorized, errorBody("missing caller identity"))
	}
	ctx := c.Request().Context()
	session, err := h.registry.Add(realtime.Session{Identity: identity})
	if err != nil {
		return c.JSON(stdhttp.StatusConflict, errorBody(err.Error()))
	}
	h.transport.Open(session.ID)
	defer func() {
		h.registry.Remove(session.ID)
		h.transport.Close(session.ID)
		h.logger.Info(ctx, "session closed", "session_id", session.ID, "user_id", identity.UserID)
	}()
	h.logger.Info(ctx, "session opened", "session_id", session.ID, "user_id", identity.UserID)

	if err := h.transport.Serve(ctx, c.Response(), session.ID); err != nil {
		h.logger.Warn(ctx, "session stream ended", "session_id", session.ID, "error", err)
	}
	return nil
}
