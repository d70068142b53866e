package application

import (
	"context"
	"errors"
	"fmt"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

// failure is an expected operation failure: a domain sentinel plus the
// message returned to the caller.
type failure struct {
	kind error
	msg  string
}

func (f *failure) Error() string { return f.msg }
func (f *failure) Unwrap() error { return f.kind }

func fail(kind error, format string, args ...any) error {
	return &failure{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func notFound(kind domain.EntityKind) error {
	return fail(domain.ErrNotFound, "%s not found.", kind)
}

func sameName(kind domain.EntityKind) error {
	return fail(domain.ErrConflict, "%s with the same name exists.", kind)
}

// resultFromError turns err into a failed result. Unexpected errors are logged
// and reported with a generic message so storage details never reach callers.
func resultFromError[T any](ctx context.Context, logger ports.Logger, kind domain.EntityKind, op string, obj T, err error) domain.ServiceResult[T] {
	var f *failure
	if errors.As(err, &f) {
		return domain.Failed(obj, f, f.msg)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Failed(obj, err, fmt.Sprintf("%s not found.", kind))
	}
	logger.Error(ctx, "operation failed", "kind", kind, "operation", op, "error", err)
	if !errors.Is(err, domain.ErrStorageUnavailable) && !errors.Is(err, domain.ErrInvalidInput) && !errors.Is(err, domain.ErrConflict) {
		err = fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return domain.Failed(obj, err, fmt.Sprintf("%s could not be processed: storage unavailable.", kind))
}
