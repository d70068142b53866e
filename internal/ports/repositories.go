package ports

import (
	"context"

	"pipeline-orchestrator/internal/domain"
)

// AggregateStore persists whole aggregate documents by id. Implementations
// report domain.ErrNotFound, domain.ErrConflict, or wrap
// domain.ErrStorageUnavailable for I/O failures.
type AggregateStore[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	GetAll(ctx context.Context) ([]T, error)
	Insert(ctx context.Context, doc T) error
	Replace(ctx context.Context, id string, doc T) error
	Delete(ctx context.Context, id string) (T, error)
}

type PipelineStore = AggregateStore[domain.PipelineDefinition]

type UserStore = AggregateStore[domain.User]

type UserGroupStore = AggregateStore[domain.UserGroup]
