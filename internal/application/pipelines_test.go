package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pipeline-orchestrator/internal/domain"
)

func TestPipelineDefinitionService_Add(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.pipelineSvc.Add(ctx, domain.PipelineDefinition{
		Name: "P1",
		Stages: []domain.StageDefinition{{
			Name: "build",
			Jobs: []domain.JobDefinition{{Name: "compile"}},
		}},
	})
	require.False(t, res.HasError(), res.Message)

	p := res.Object
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "PipelineDefinition "+p.ID+" added successfully.", res.Message)
	assert.Equal(t, domain.NotificationCreated, res.Notification)
	require.Len(t, p.Stages, 1)
	assert.NotEmpty(t, p.Stages[0].ID)
	assert.Equal(t, p.ID, p.Stages[0].PipelineDefinitionID)
	require.Len(t, p.Stages[0].Jobs, 1)
	assert.Equal(t, p.ID, p.Stages[0].Jobs[0].PipelineDefinitionID)
	assert.Equal(t, p.Stages[0].ID, p.Stages[0].Jobs[0].StageDefinitionID)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindPipelineDefinition, events[0].Kind)
	assert.Equal(t, "add", events[0].Operation)
	assert.Equal(t, p.ID, events[0].Scope.PipelineID)
}

func TestPipelineDefinitionService_AddConflictsOnName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.False(t, f.pipelineSvc.Add(ctx, domain.PipelineDefinition{Name: "P1"}).HasError())
	f.notifier.Reset()

	res := f.pipelineSvc.Add(ctx, domain.PipelineDefinition{Name: "P1"})
	assert.ErrorIs(t, res.Err, domain.ErrConflict)
	assert.Equal(t, "PipelineDefinition with the same name exists.", res.Message)
	assert.Empty(t, f.notifier.Events())
}

func TestPipelineDefinitionService_AddRejectsDuplicateNestedNames(t *testing.T) {
	f := newFixture(t)

	res := f.pipelineSvc.Add(context.Background(), domain.PipelineDefinition{
		Name:   "P1",
		Stages: []domain.StageDefinition{{Name: "build"}, {Name: "build"}},
	})
	assert.ErrorIs(t, res.Err, domain.ErrConflict)
	assert.Equal(t, "StageDefinition with the same name exists.", res.Message)

	res = f.pipelineSvc.Add(context.Background(), domain.PipelineDefinition{Name: ""})
	assert.ErrorIs(t, res.Err, domain.ErrInvalidInput)
	assert.Equal(t, "PipelineDefinition name is required.", res.Message)
}

func TestPipelineDefinitionService_GetByID(t *testing.T) {
	f := newFixture(t)
	p, _ := f.seedPipeline(t)

	res := f.pipelineSvc.GetByID(context.Background(), p.ID)
	require.False(t, res.HasError())
	assert.Equal(t, "PipelineDefinition "+p.ID+" retrieved successfully.", res.Message)
	assert.Len(t, res.Object.Stages, 1)

	res = f.pipelineSvc.GetByID(context.Background(), "")
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)
	assert.Equal(t, "PipelineDefinition not found.", res.Message)

	res = f.pipelineSvc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)
}

func TestPipelineDefinitionService_GetAllEmpty(t *testing.T) {
	f := newFixture(t)

	res := f.pipelineSvc.GetAll(context.Background())
	require.False(t, res.HasError())
	assert.NotNil(t, res.Object)
	assert.Empty(t, res.Object)
	assert.Equal(t, "PipelineDefinitions retrieved successfully.", res.Message)
}

func TestPipelineDefinitionService_UpdateKeepsStages(t *testing.T) {
	f := newFixture(t)
	p, stage := f.seedPipeline(t)

	res := f.pipelineSvc.Update(context.Background(), domain.PipelineDefinition{ID: p.ID, Name: "P1-renamed", AutoScheduling: true})
	require.False(t, res.HasError(), res.Message)
	assert.Equal(t, "P1-renamed", res.Object.Name)
	require.Len(t, res.Object.Stages, 1)
	assert.Equal(t, stage.ID, res.Object.Stages[0].ID)
	assert.Equal(t, p.CreatedAt, res.Object.CreatedAt)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestPipelineDefinitionService_UpdateFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.seedPipeline(t)
	require.False(t, f.pipelineSvc.Add(ctx, domain.PipelineDefinition{Name: "P2"}).HasError())
	f.notifier.Reset()

	res := f.pipelineSvc.Update(ctx, domain.PipelineDefinition{ID: "missing", Name: "X"})
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)

	res = f.pipelineSvc.Update(ctx, domain.PipelineDefinition{ID: p.ID, Name: "P2"})
	assert.ErrorIs(t, res.Err, domain.ErrConflict)

	res = f.pipelineSvc.Update(ctx, domain.PipelineDefinition{ID: p.ID, Name: "P1"})
	assert.False(t, res.HasError(), "keeping its own name is not a conflict")
	assert.Len(t, f.notifier.Events(), 1)
}

func TestPipelineDefinitionService_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, stage := f.seedPipeline(t)
	require.False(t, f.jobSvc.Add(ctx, domain.JobDefinition{Name: "compile", PipelineDefinitionID: p.ID, StageDefinitionID: stage.ID}).HasError())

	res := f.pipelineSvc.Delete(ctx, p.ID)
	require.False(t, res.HasError(), res.Message)
	assert.Equal(t, "PipelineDefinition deleted successfully.", res.Message)
	assert.Equal(t, p.ID, res.Object.ID)

	jobs := f.jobSvc.GetAllInPipeline(ctx, p.ID)
	assert.ErrorIs(t, jobs.Err, domain.ErrNotFound)
	assert.Equal(t, "PipelineDefinition not found.", jobs.Message)
	assert.ErrorIs(t, f.stageSvc.GetByID(ctx, stage.ID).Err, domain.ErrNotFound)

	res = f.pipelineSvc.Delete(ctx, p.ID)
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)
}

func TestPipelineDefinitionService_GroupAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.seedPipeline(t)

	res := f.pipelineSvc.AssignToGroup(ctx, p.ID, "pg-1", "backend")
	require.False(t, res.HasError(), res.Message)
	assert.Equal(t, "pg-1", res.Object.PipelineGroupID)
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "pg-1", events[0].Scope.PipelineGroupID)

	res = f.pipelineSvc.UnassignFromGroup(ctx, p.ID)
	require.False(t, res.HasError())
	assert.Empty(t, res.Object.PipelineGroupID)
	assert.Empty(t, res.Object.PipelineGroupName)

	res = f.pipelineSvc.AssignToGroup(ctx, p.ID, "", "")
	assert.ErrorIs(t, res.Err, domain.ErrInvalidInput)
}

func TestPipelineDefinitionService_GetAllAutomaticallyScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.False(t, f.pipelineSvc.Add(ctx, domain.PipelineDefinition{Name: "manual"}).HasError())
	require.False(t, f.pipelineSvc.Add(ctx, domain.PipelineDefinition{Name: "auto", AutoScheduling: true}).HasError())

	res := f.pipelineSvc.GetAllAutomaticallyScheduled(ctx)
	require.False(t, res.HasError())
	require.Len(t, res.Object, 1)
	assert.Equal(t, "auto", res.Object[0].Name)
}

func TestPipelineDefinitionService_StorageFailure(t *testing.T) {
	store := new(storeMock[domain.PipelineDefinition])
	notifier := &recordingNotifier{}
	svc := NewPipelineDefinitionService(store, notifier, nopLogger{}, NewKeyedMutex())
	boom := errors.New("connection reset")

	store.On("GetAll", mock.Anything).Return([]domain.PipelineDefinition(nil), boom)

	res := svc.GetAll(context.Background())
	assert.ErrorIs(t, res.Err, domain.ErrStorageUnavailable)
	assert.Equal(t, "PipelineDefinition could not be processed: storage unavailable.", res.Message)
	assert.NotNil(t, res.Object)

	res2 := svc.Add(context.Background(), domain.PipelineDefinition{Name: "P1"})
	assert.ErrorIs(t, res2.Err, domain.ErrStorageUnavailable)
	assert.NotContains(t, res2.Message, "connection reset")
	assert.Empty(t, notifier.Events())
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestApplyQuery(t *testing.T) {
	items := []int{5, 3, 8, 1, 9, 2}

	got := ApplyQuery(items, QueryOptions[int]{
		Filter:  func(v int) bool { return v > 1 },
		Compare: func(a, b int) int { return a - b },
		Skip:    1,
		Limit:   3,
	})
	assert.Equal(t, []int{3, 5, 8}, got)
	assert.Equal(t, []int{5, 3, 8, 1, 9, 2}, items)

	assert.Empty(t, ApplyQuery(items, QueryOptions[int]{Skip: 10}))
	assert.Equal(t, items, ApplyQuery(items, QueryOptions[int]{}))
}
