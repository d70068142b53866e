package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/infrastructure/memory"
)

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Debug(context.Context, string, ...any) {}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Event(nil), n.events...)
}

func (n *recordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type sessionTableStub struct {
	mu      sync.Mutex
	updates map[string][]domain.Permission
}

func (s *sessionTableStub) UpdatePermissions(userID string, perms []domain.Permission) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = map[string][]domain.Permission{}
	}
	s.updates[userID] = perms
	return 1
}

func (s *sessionTableStub) Updated(userID string) ([]domain.Permission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms, ok := s.updates[userID]
	return perms, ok
}

type storeMock[T any] struct{ mock.Mock }

func (m *storeMock[T]) Get(ctx context.Context, id string) (T, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(T), args.Error(1)
}

func (m *storeMock[T]) GetAll(ctx context.Context) ([]T, error) {
	args := m.Called(ctx)
	return args.Get(0).([]T), args.Error(1)
}

func (m *storeMock[T]) Insert(ctx context.Context, doc T) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *storeMock[T]) Replace(ctx context.Context, id string, doc T) error {
	args := m.Called(ctx, id, doc)
	return args.Error(0)
}

func (m *storeMock[T]) Delete(ctx context.Context, id string) (T, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(T), args.Error(1)
}

type fixture struct {
	pipelines *memory.Store[domain.PipelineDefinition]
	users     *memory.Store[domain.User]
	groups    *memory.Store[domain.UserGroup]
	notifier  *recordingNotifier
	sessions  *sessionTableStub

	pipelineSvc *PipelineDefinitionService
	stageSvc    *StageDefinitionService
	jobSvc      *JobDefinitionService
	userSvc     *UserService
	groupSvc    *UserGroupService
	authz       *AuthorizationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pipelines: memory.NewStore[domain.PipelineDefinition](),
		users:     memory.NewStore[domain.User](),
		groups:    memory.NewStore[domain.UserGroup](),
		notifier:  &recordingNotifier{},
		sessions:  &sessionTableStub{},
	}
	locks := NewKeyedMutex()
	logger := nopLogger{}
	f.authz = NewAuthorizationService(f.users, f.groups)
	refresher := NewSessionRefresher(f.authz, f.sessions, logger)
	f.pipelineSvc = NewPipelineDefinitionService(f.pipelines, f.notifier, logger, locks)
	f.stageSvc = NewStageDefinitionService(f.pipelines, f.notifier, logger, locks)
	f.jobSvc = NewJobDefinitionService(f.pipelines, f.notifier, logger, locks)
	f.userSvc = NewUserService(f.users, f.groups, f.notifier, logger, locks, refresher)
	f.groupSvc = NewUserGroupService(f.groups, f.users, f.notifier, logger, locks, refresher)
	return f
}

// seedPipeline creates pipeline P1 with stage "build".
func (f *fixture) seedPipeline(t *testing.T) (domain.PipelineDefinition, domain.StageDefinition) {
	t.Helper()
	ctx := context.Background()
	p := f.pipelineSvc.Add(ctx, domain.PipelineDefinition{Name: "P1"})
	require.False(t, p.HasError(), p.Message)
	s := f.stageSvc.Add(ctx, domain.StageDefinition{Name: "build", PipelineDefinitionID: p.Object.ID})
	require.False(t, s.HasError(), s.Message)
	f.notifier.Reset()
	return p.Object, s.Object
}
