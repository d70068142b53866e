// Package platform assembles the orchestrator from configuration: stores,
// services, the notification router and the HTTP surface.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	adaptermiddleware "pipeline-orchestrator/internal/adapters/http/middleware"
	"pipeline-orchestrator/internal/adapters/metrics"
	"pipeline-orchestrator/internal/application"
	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/infrastructure"
	"pipeline-orchestrator/internal/infrastructure/auth"
	"pipeline-orchestrator/internal/infrastructure/dynamodb"
	"pipeline-orchestrator/internal/infrastructure/memory"
	httpiface "pipeline-orchestrator/internal/interfaces/http"
	"pipeline-orchestrator/internal/ports"
	"pipeline-orchestrator/internal/realtime"
	"pipeline-orchestrator/internal/realtime/bus"
)

type Stores struct {
	Pipelines ports.PipelineStore
	Users     ports.UserStore
	Groups    ports.UserGroupStore
}

// Services are the application services sharing one notifier and one lock table.
type Services struct {
	Pipelines     *application.PipelineDefinitionService
	Stages        *application.StageDefinitionService
	Jobs          *application.JobDefinitionService
	Users         *application.UserService
	UserGroups    *application.UserGroupService
	Authorization *application.AuthorizationService
}

type App struct {
	Echo     *echo.Echo
	Router   *realtime.Router
	Registry *realtime.Registry
	Services Services
	Metrics  *prometheus.Registry

	logger ports.Logger
	bus    bus.Bus
}

type options struct {
	streaming bool
	stores    *Stores
	bus       bus.Bus
}

type Option func(*options)

// WithoutStreaming leaves out the /events endpoint. The Lambda surface uses it
// since an invocation cannot hold a session open.
func WithoutStreaming() Option {
	return func(o *options) { o.streaming = false }
}

// WithStores overrides the stores selected by the configuration.
func WithStores(s Stores) Option {
	return func(o *options) { o.stores = &s }
}

// WithBus overrides the Redis bus selected by the configuration.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

func NewStores(ctx context.Context, cfg infrastructure.Config) (Stores, error) {
	switch cfg.StoreBackend {
	case infrastructure.StoreMemory:
		return Stores{
			Pipelines: memory.NewStore[domain.PipelineDefinition](),
			Users:     memory.NewStore[domain.User](),
			Groups:    memory.NewStore[domain.UserGroup](),
		}, nil
	case infrastructure.StoreDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.Region, cfg.TableName)
		if err != nil {
			return Stores{}, fmt.Errorf("dynamodb client: %w", err)
		}
		return Stores{
			Pipelines: dynamodb.NewPipelineStore(client),
			Users:     dynamodb.NewUserStore(client),
			Groups:    dynamodb.NewUserGroupStore(client),
		}, nil
	default:
		return Stores{}, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func NewServices(stores Stores, authz *application.AuthorizationService, notifier ports.Notifier, sessions ports.SessionTable, logger ports.Logger) Services {
	locks := application.NewKeyedMutex()
	refresher := application.NewSessionRefresher(authz, sessions, logger)
	return Services{
		Pipelines:     application.NewPipelineDefinitionService(stores.Pipelines, notifier, logger, locks),
		Stages:        application.NewStageDefinitionService(stores.Pipelines, notifier, logger, locks),
		Jobs:          application.NewJobDefinitionService(stores.Pipelines, notifier, logger, locks),
		Users:         application.NewUserService(stores.Users, stores.Groups, notifier, logger, locks, refresher),
		UserGroups:    application.NewUserGroupService(stores.Groups, stores.Users, notifier, logger, locks, refresher),
		Authorization: authz,
	}
}

func New(ctx context.Context, cfg infrastructure.Config, logger ports.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger required")
	}
	o := options{streaming: true}
	for _, opt := range opts {
		opt(&o)
	}

	var stores Stores
	if o.stores != nil {
		stores = *o.stores
	} else {
		s, err := NewStores(ctx, cfg)
		if err != nil {
			return nil, err
		}
		stores = s
	}

	eventBus := o.bus
	if eventBus == nil && cfg.RedisAddr != "" {
		channel := cfg.RedisChannel
		if channel == "" {
			channel = bus.DefaultChannel
		}
		b, err := bus.NewRedisBus(ctx, logger, cfg.RedisAddr, channel)
		if err != nil {
			return nil, fmt.Errorf("event bus: %w", err)
		}
		eventBus = b
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	registry := realtime.NewRegistry()
	registry.OnSizeChange(collector.SetSessions)
	transport := realtime.NewSSETransport(logger, cfg.SessionBuffer, cfg.SSEHeartbeat)

	routerOpts := []realtime.Option{realtime.WithMetrics(collector), realtime.WithFanout(cfg.FanoutConcurrency)}
	if eventBus != nil {
		routerOpts = append(routerOpts, realtime.WithBus(eventBus))
	}
	authz := application.NewAuthorizationService(stores.Users, stores.Groups)
	router := realtime.NewRouter(registry, transport, authz, logger, routerOpts...)
	services := NewServices(stores, authz, router, registry, logger)

	mw, err := newMiddleware(cfg, logger, services.Authorization)
	if err != nil {
		return nil, err
	}
	handlers := httpiface.Handlers{
		Pipelines:  httpiface.NewPipelinesHandler(services.Pipelines),
		Stages:     httpiface.NewStagesHandler(services.Stages, services.Pipelines),
		Jobs:       httpiface.NewJobsHandler(services.Jobs, services.Stages, services.Pipelines),
		Users:      httpiface.NewUsersHandler(services.Users),
		UserGroups: httpiface.NewUserGroupsHandler(services.UserGroups),
		Metrics:    metrics.Handler(reg),
	}
	if o.streaming {
		handlers.Events = httpiface.NewEventsHandler(registry, transport, logger)
	}

	return &App{
		Echo:     httpiface.NewMainRouter(handlers, mw),
		Router:   router,
		Registry: registry,
		Services: services,
		Metrics:  reg,
		logger:   logger,
		bus:      eventBus,
	}, nil
}

func newMiddleware(cfg infrastructure.Config, logger ports.Logger, identities adaptermiddleware.IdentityResolver) (httpiface.Middleware, error) {
	mode, err := adaptermiddleware.ParseAuthMode(cfg.AuthMode)
	if err != nil {
		return httpiface.Middleware{}, err
	}
	var cognitoHandler echo.MiddlewareFunc
	if mode == adaptermiddleware.ModeCognito {
		cognitoHandler = adaptermiddleware.BearerIdentity(auth.NewCognitoVerifier(cfg.UserPoolID, cfg.Region), identities)
	}
	authMiddleware, err := adaptermiddleware.AuthMiddleware(mode, cognitoHandler)
	if err != nil {
		return httpiface.Middleware{}, fmt.Errorf("auth middleware: %w", err)
	}
	return httpiface.Middleware{
		Auth:          authMiddleware,
		XRay:          adaptermiddleware.XRayMiddleware("pipeline-orchestrator-http"),
		RequestLogger: adaptermiddleware.RequestLogger(logger),
		Identity:      adaptermiddleware.IdentityMiddleware(mode, identities),
	}, nil
}

// Start runs the notification router and, when a bus is configured, relays
// events from other instances into it. Both stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.Router.HandleRemote); err != nil {
			return fmt.Errorf("event bus forwarder: %w", err)
		}
	}
	go func() {
		if err := a.Router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error(ctx, "notification router stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown waits for queued notifications and releases the bus.
func (a *App) Shutdown(ctx context.Context) error {
	flushErr := a.Router.Flush(ctx)
	a.Router.Close()
	var busErr error
	if a.bus != nil {
		busErr = a.bus.Close()
	}
	return errors.Join(flushErr, busErr)
}
