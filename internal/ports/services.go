package ports

import (
	"context"

	"pipeline-orchestrator/internal/domain"
)

type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}

// Notifier receives every successful mutation. Notify must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}

type AuthorizationEvaluator interface {
	Allows(identity domain.Identity, kind domain.EntityKind, scope domain.Scope, action domain.Action) bool
}

// SessionTable is the part of the session registry that membership changes touch.
type SessionTable interface {
	UpdatePermissions(userID string, permissions []domain.Permission) int
}
