package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

// PipelineDefinitionService manages pipeline aggregates. Pipeline updates change
// pipeline-level fields only; stages and jobs go through StageDefinitionService
// and JobDefinitionService so concurrent nested edits are never overwritten.
type PipelineDefinitionService struct {
	*CrudCore[domain.PipelineDefinition]
}

func NewPipelineDefinitionService(store ports.PipelineStore, notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex) *PipelineDefinitionService {
	core := NewCrudCore(domain.KindPipelineDefinition, store, notifier, logger, locks, CrudOptions[domain.PipelineDefinition]{
		Stamp:       stampPipeline,
		Validate:    validatePipeline,
		UniqueKey:   func(p domain.PipelineDefinition) string { return p.Name },
		UniqueLabel: "name",
		Merge: func(stored, incoming domain.PipelineDefinition) domain.PipelineDefinition {
			incoming.Stages = stored.Stages
			incoming.CreatedAt = stored.CreatedAt
			return incoming
		},
		Scope: PipelineScope,
	})
	return &PipelineDefinitionService{CrudCore: core}
}

// PipelineScope locates p for authorization checks.
func PipelineScope(p domain.PipelineDefinition) domain.Scope {
	return domain.Scope{PipelineID: p.ID, PipelineGroupID: p.PipelineGroupID}
}

func newID() string { return uuid.NewString() }

// stampPipeline assigns ids and back-references to the pipeline and to every
// stage and job embedded in it on creation.
func stampPipeline(p domain.PipelineDefinition, now time.Time, created bool) domain.PipelineDefinition {
	p.UpdatedAt = now
	if !created {
		return p
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now
	p = p.Clone()
	for i := range p.Stages {
		p.Stages[i].PipelineDefinitionID = p.ID
		p.Stages[i] = stampStage(p.Stages[i], now, true)
	}
	return p
}

func validatePipeline(p domain.PipelineDefinition) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("PipelineDefinition name is required.")
	}
	stageNames := map[string]bool{}
	for _, s := range p.Stages {
		if err := validateStage(s); err != nil {
			return err
		}
		if stageNames[s.Name] {
			return sameName(domain.KindStageDefinition)
		}
		stageNames[s.Name] = true
	}
	return nil
}

func (s *PipelineDefinitionService) GetAllAutomaticallyScheduled(ctx context.Context) domain.ServiceResult[[]domain.PipelineDefinition] {
	return s.Query(ctx, QueryOptions[domain.PipelineDefinition]{
		Filter: func(p domain.PipelineDefinition) bool { return p.AutoScheduling },
	})
}

func (s *PipelineDefinitionService) AssignToGroup(ctx context.Context, pipelineID, groupID, groupName string) domain.ServiceResult[domain.PipelineDefinition] {
	if groupID == "" {
		return domain.Failed(domain.PipelineDefinition{}, fail(domain.ErrInvalidInput, "Pipeline group id is required."), "Pipeline group id is required.")
	}
	return s.setGroup(ctx, "assignPipelineToGroup", pipelineID, groupID, groupName)
}

func (s *PipelineDefinitionService) UnassignFromGroup(ctx context.Context, pipelineID string) domain.ServiceResult[domain.PipelineDefinition] {
	return s.setGroup(ctx, "unassignPipelineFromGroup", pipelineID, "", "")
}

func (s *PipelineDefinitionService) setGroup(ctx context.Context, op, pipelineID, groupID, groupName string) domain.ServiceResult[domain.PipelineDefinition] {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock(s.key(pipelineID))
	defer unlock()

	p, err := s.store.Get(ctx, pipelineID)
	if err != nil {
		return s.fail(ctx, op, domain.PipelineDefinition{}, err)
	}
	p.PipelineGroupID = groupID
	p.PipelineGroupName = groupName
	p.UpdatedAt = s.now()
	return s.replaceLocked(ctx, op, p)
}
