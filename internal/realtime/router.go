package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
	"pipeline-orchestrator/internal/realtime/bus"
)

var ErrRouterClosed = errors.New("notification router closed")

// Transport delivers contracts to live sessions. Deliver must not block on a
// slow client; Close releases whatever the transport holds for the session.
type Transport interface {
	Deliver(ctx context.Context, sessionID string, c Contract) error
	Close(sessionID string)
}

// Metrics observes fan-out. Delivery results are "delivered", "denied",
// "failed" or "dropped".
type Metrics interface {
	RecordDispatch(kind domain.EntityKind, operation string)
	RecordDelivery(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecordDispatch(domain.EntityKind, string) {}
func (nopMetrics) RecordDelivery(string)                    {}

type dispatch struct {
	event  domain.Event
	remote bool
	done   chan struct{}
}

// Router turns completed mutations into contracts and delivers them to every
// session whose permission snapshot allows viewing the mutated entity.
// Notify only enqueues; a single Run loop fans out, so each session sees
// events in the order they were committed.
type Router struct {
	registry  *Registry
	transport Transport
	authz     ports.AuthorizationEvaluator
	logger    ports.Logger
	metrics   Metrics
	bus       bus.Bus
	origin    string
	fanout    int

	// enqueueWait bounds how long Notify blocks on a full queue.
	enqueueWait time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan dispatch
}

type Option func(*Router)

func WithMetrics(m Metrics) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithBus relays local events to other instances through b.
func WithBus(b bus.Bus) Option {
	return func(r *Router) { r.bus = b }
}

// WithFanout bounds concurrent deliveries of one event.
func WithFanout(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.fanout = n
		}
	}
}

// WithEnqueueWait sets how long Notify waits for queue space before the event
// is dropped. Zero drops immediately.
func WithEnqueueWait(d time.Duration) Option {
	return func(r *Router) {
		if d >= 0 {
			r.enqueueWait = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queue = make(chan dispatch, n)
		}
	}
}

func NewRouter(registry *Registry, transport Transport, authz ports.AuthorizationEvaluator, logger ports.Logger, opts ...Option) *Router {
	r := &Router{
		registry:  registry,
		transport: transport,
		authz:     authz,
		logger:    logger,
		metrics:   nopMetrics{},
		origin:    uuid.NewString(),
		fanout:    16,
		queue:     make(chan dispatch, 1024),

		enqueueWait: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Origin() string { return r.origin }

// Notify enqueues event for fan-out. A full queue holds the caller for at
// most the enqueue wait; after that the event is dropped and logged.
func (r *Router) Notify(ctx context.Context, event domain.Event) {
	if !r.enqueue(ctx, dispatch{event: event}) {
		r.logger.Warn(ctx, "notification dropped", "kind", event.Kind, "operation", event.Operation)
		r.metrics.RecordDelivery("dropped")
	}
}

// HandleRemote fans out an event relayed from another instance. Envelopes this
// instance published itself are ignored.
func (r *Router) HandleRemote(env bus.Envelope) {
	if env.Origin == r.origin {
		return
	}
	if !r.enqueue(context.Background(), dispatch{event: env.Event, remote: true}) {
		r.logger.Warn(context.Background(), "relayed notification dropped", "kind", env.Event.Kind, "origin", env.Origin)
		r.metrics.RecordDelivery("dropped")
	}
}

func (r *Router) enqueue(ctx context.Context, d dispatch) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- d:
		return true
	default:
	}
	if r.enqueueWait == 0 {
		return false
	}
	timer := time.NewTimer(r.enqueueWait)
	defer timer.Stop()
	select {
	case r.queue <- d:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run fans out queued events until ctx is done or Close drains the queue.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-r.queue:
			if !ok {
				return nil
			}
			r.dispatch(ctx, d)
		}
	}
}

// Flush blocks until every event enqueued before the call has been fanned out.
func (r *Router) Flush(ctx context.Context) error {
	done := make(chan struct{})
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRouterClosed
	}
	select {
	case r.queue <- dispatch{done: done}:
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}
	r.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events. Run returns after draining what is queued.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

func (r *Router) dispatch(ctx context.Context, d dispatch) {
	if d.done != nil {
		close(d.done)
		return
	}
	event := d.event
	r.metrics.RecordDispatch(event.Kind, event.Operation)

	if r.bus != nil && !d.remote {
		if err := r.bus.Publish(ctx, bus.Envelope{Origin: r.origin, Event: event}); err != nil {
			r.logger.Warn(ctx, "event bus publish failed", "kind", event.Kind, "operation", event.Operation, "error", err)
		}
	}

	contract := NewContract(event)
	var g errgroup.Group
	g.SetLimit(r.fanout)
	for _, s := range r.registry.Snapshot() {
		if !r.authz.Allows(s.Identity, event.Kind, event.Scope, domain.ActionView) {
			r.metrics.RecordDelivery("denied")
			continue
		}
		g.Go(func() error {
			if err := r.transport.Deliver(ctx, s.ID, contract); err != nil {
				r.logger.Warn(ctx, "session delivery failed", "session_id", s.ID, "user_id", s.Identity.UserID, "error", err)
				r.metrics.RecordDelivery("failed")
				r.evict(s.ID)
				return nil
			}
			r.metrics.RecordDelivery("delivered")
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Router) evict(sessionID string) {
	r.registry.Remove(sessionID)
	r.transport.Close(sessionID)
}
