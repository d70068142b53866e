package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

type aggregate interface {
	GetID() string
}

// CrudOptions specializes CrudCore for one aggregate type. Only Stamp is required.
type CrudOptions[T aggregate] struct {
	// Stamp assigns identity and timestamps. created is true on add.
	Stamp func(entity T, now time.Time, created bool) T
	// Validate rejects malformed input; non-failure errors become ErrInvalidInput.
	Validate func(entity T) error
	// UniqueKey, when set, must not collide between two different aggregates.
	UniqueKey   func(entity T) string
	UniqueLabel string
	// Merge builds the document to persist on update from the stored one.
	Merge func(stored, incoming T) T
	// Scope locates the aggregate for authorization of its notifications.
	Scope func(entity T) domain.Scope
}

// CrudCore implements add/get/update/delete over top-level aggregates.
// Successful mutations notify exactly once; failures notify nothing.
type CrudCore[T aggregate] struct {
	kind     domain.EntityKind
	store    ports.AggregateStore[T]
	notifier ports.Notifier
	logger   ports.Logger
	locks    *KeyedMutex
	opts     CrudOptions[T]
	now      func() time.Time
}

func NewCrudCore[T aggregate](kind domain.EntityKind, store ports.AggregateStore[T], notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex, opts CrudOptions[T]) *CrudCore[T] {
	return &CrudCore[T]{
		kind:     kind,
		store:    store,
		notifier: notifier,
		logger:   logger,
		locks:    locks,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func aggregateKey(kind domain.EntityKind, id string) string { return string(kind) + "/" + id }

func collectionKey(kind domain.EntityKind) string { return string(kind) + "/*" }

func (c *CrudCore[T]) key(id string) string { return aggregateKey(c.kind, id) }

func (c *CrudCore[T]) scope(entity T) domain.Scope {
	if c.opts.Scope == nil {
		return domain.Scope{}
	}
	return c.opts.Scope(entity)
}

func (c *CrudCore[T]) notify(ctx context.Context, op string, res domain.ServiceResult[T]) {
	c.notifier.Notify(ctx, domain.NewEvent(c.kind, op, c.scope(res.Object), res))
}

func (c *CrudCore[T]) fail(ctx context.Context, op string, obj T, err error) domain.ServiceResult[T] {
	return resultFromError(ctx, c.logger, c.kind, op, obj, err)
}

func (c *CrudCore[T]) GetByID(ctx context.Context, id string) domain.ServiceResult[T] {
	var zero T
	if id == "" {
		return domain.Failed(zero, notFound(c.kind), fmt.Sprintf("%s not found.", c.kind))
	}
	entity, err := c.store.Get(ctx, id)
	if err != nil {
		return c.fail(ctx, "getById", zero, err)
	}
	return domain.Succeeded(entity, domain.NotificationNone, fmt.Sprintf("%s %s retrieved successfully.", c.kind, id))
}

func (c *CrudCore[T]) GetAll(ctx context.Context) domain.ServiceResult[[]T] {
	return c.Query(ctx, QueryOptions[T]{})
}

// Query lists aggregates through the store's full scan and filters, sorts and
// pages them in memory.
func (c *CrudCore[T]) Query(ctx context.Context, q QueryOptions[T]) domain.ServiceResult[[]T] {
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return c.failList(ctx, err)
	}
	return domain.Succeeded(ApplyQuery(all, q), domain.NotificationNone, fmt.Sprintf("%ss retrieved successfully.", c.kind))
}

func (c *CrudCore[T]) failList(ctx context.Context, err error) domain.ServiceResult[[]T] {
	return resultFromError(ctx, c.logger, c.kind, "getAll", []T{}, err)
}

func (c *CrudCore[T]) validate(entity T) error {
	if c.opts.Validate == nil {
		return nil
	}
	if err := c.opts.Validate(entity); err != nil {
		return asInvalid(err)
	}
	return nil
}

// checkUnique reports a conflict when another aggregate shares entity's key.
// Callers hold the collection lock.
func (c *CrudCore[T]) checkUnique(ctx context.Context, entity T) error {
	if c.opts.UniqueKey == nil {
		return nil
	}
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return err
	}
	key := c.opts.UniqueKey(entity)
	for _, other := range all {
		if other.GetID() != entity.GetID() && c.opts.UniqueKey(other) == key {
			return fail(domain.ErrConflict, "%s with the same %s exists.", c.kind, cmp.Or(c.opts.UniqueLabel, "key"))
		}
	}
	return nil
}

func (c *CrudCore[T]) Add(ctx context.Context, entity T) domain.ServiceResult[T] {
	ctx = context.WithoutCancel(ctx)
	entity = c.opts.Stamp(entity, c.now(), true)
	if err := c.validate(entity); err != nil {
		return c.fail(ctx, "add", entity, err)
	}
	unlock := c.locks.Lock(collectionKey(c.kind), c.key(entity.GetID()))
	defer unlock()

	if err := c.checkUnique(ctx, entity); err != nil {
		return c.fail(ctx, "add", entity, err)
	}
	if err := c.store.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			err = fail(domain.ErrConflict, "%s with the same id exists.", c.kind)
		}
		return c.fail(ctx, "add", entity, err)
	}
	res := domain.Succeeded(entity, domain.NotificationCreated, fmt.Sprintf("%s %s added successfully.", c.kind, entity.GetID()))
	c.notify(ctx, "add", res)
	return res
}

// Update merges entity over the stored aggregate and validates the result.
func (c *CrudCore[T]) Update(ctx context.Context, entity T) domain.ServiceResult[T] {
	ctx = context.WithoutCancel(ctx)
	unlock := c.locks.Lock(collectionKey(c.kind), c.key(entity.GetID()))
	defer unlock()

	stored, err := c.store.Get(ctx, entity.GetID())
	if err != nil {
		return c.fail(ctx, "update", entity, err)
	}
	if c.opts.Merge != nil {
		entity = c.opts.Merge(stored, entity)
	}
	entity = c.opts.Stamp(entity, c.now(), false)
	if err := c.validate(entity); err != nil {
		return c.fail(ctx, "update", entity, err)
	}
	if err := c.checkUnique(ctx, entity); err != nil {
		return c.fail(ctx, "update", entity, err)
	}
	return c.replaceLocked(ctx, "update", entity)
}

// replaceLocked persists entity and notifies. Callers hold the aggregate's lock.
func (c *CrudCore[T]) replaceLocked(ctx context.Context, op string, entity T) domain.ServiceResult[T] {
	if err := c.store.Replace(ctx, entity.GetID(), entity); err != nil {
		return c.fail(ctx, op, entity, err)
	}
	res := domain.Succeeded(entity, domain.NotificationUpdated, fmt.Sprintf("%s %s updated successfully.", c.kind, entity.GetID()))
	c.notify(ctx, op, res)
	return res
}

func (c *CrudCore[T]) Delete(ctx context.Context, id string) domain.ServiceResult[T] {
	ctx = context.WithoutCancel(ctx)
	unlock := c.locks.Lock(c.key(id))
	defer unlock()
	return c.deleteLocked(ctx, id)
}

// deleteLocked removes the aggregate and everything embedded in it.
// Callers hold the aggregate's lock.
func (c *CrudCore[T]) deleteLocked(ctx context.Context, id string) domain.ServiceResult[T] {
	var zero T
	if id == "" {
		return domain.Failed(zero, notFound(c.kind), fmt.Sprintf("%s not found.", c.kind))
	}
	deleted, err := c.store.Delete(ctx, id)
	if err != nil {
		return c.fail(ctx, "delete", zero, err)
	}
	res := domain.Succeeded(deleted, domain.NotificationDeleted, fmt.Sprintf("%s deleted successfully.", c.kind))
	c.notify(ctx, "delete", res)
	return res
}
