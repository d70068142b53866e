package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

type StageDefinitionService struct {
	h hierarchy
}

func NewStageDefinitionService(pipelines ports.PipelineStore, notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex) *StageDefinitionService {
	return &StageDefinitionService{h: newHierarchy(pipelines, notifier, logger, locks)}
}

const stageKind = domain.KindStageDefinition

// stampStage gives a new stage, and every job embedded in it, a fresh id.
// Supplied ids are ignored so nested ids stay unique across pipelines.
func stampStage(s domain.StageDefinition, now time.Time, created bool) domain.StageDefinition {
	s.UpdatedAt = now
	if !created {
		return s
	}
	s.ID = newID()
	s.CreatedAt = now
	s = s.Clone()
	for i := range s.Jobs {
		s.Jobs[i].PipelineDefinitionID = s.PipelineDefinitionID
		s.Jobs[i].StageDefinitionID = s.ID
		s.Jobs[i] = stampJob(s.Jobs[i], now, true)
	}
	return s
}

func validateStage(s domain.StageDefinition) error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("StageDefinition name is required.")
	}
	jobNames := map[string]bool{}
	for _, j := range s.Jobs {
		if err := validateJob(j); err != nil {
			return err
		}
		if jobNames[j.Name] {
			return sameName(domain.KindJobDefinition)
		}
		jobNames[j.Name] = true
	}
	return nil
}

func (s *StageDefinitionService) fail(ctx context.Context, op string, obj domain.StageDefinition, err error) domain.ServiceResult[domain.StageDefinition] {
	return resultFromError(ctx, s.h.logger, stageKind, op, obj, err)
}

func (s *StageDefinitionService) GetByID(ctx context.Context, id string) domain.ServiceResult[domain.StageDefinition] {
	p, err := s.h.locateStage(ctx, id)
	if err != nil {
		return s.fail(ctx, "getById", domain.StageDefinition{}, err)
	}
	stage := p.Stages[p.StageIndex(id)]
	return domain.Succeeded(stage, domain.NotificationNone, fmt.Sprintf("%s %s retrieved successfully.", stageKind, id))
}

func (s *StageDefinitionService) GetAll(ctx context.Context) domain.ServiceResult[[]domain.StageDefinition] {
	all, err := s.h.pipelines.GetAll(ctx)
	if err != nil {
		return resultFromError(ctx, s.h.logger, stageKind, "getAll", []domain.StageDefinition{}, err)
	}
	stages := []domain.StageDefinition{}
	for _, p := range all {
		stages = append(stages, p.Stages...)
	}
	return domain.Succeeded(stages, domain.NotificationNone, fmt.Sprintf("%ss retrieved successfully.", stageKind))
}

func (s *StageDefinitionService) GetAllInPipeline(ctx context.Context, pipelineID string) domain.ServiceResult[[]domain.StageDefinition] {
	p, err := s.h.pipelines.Get(ctx, pipelineID)
	if errors.Is(err, domain.ErrNotFound) || pipelineID == "" {
		err = notFound(domain.KindPipelineDefinition)
	}
	if err != nil {
		return resultFromError(ctx, s.h.logger, stageKind, "getAllInPipeline", []domain.StageDefinition{}, err)
	}
	stages := slices.Clone(p.Stages)
	if stages == nil {
		stages = []domain.StageDefinition{}
	}
	return domain.Succeeded(stages, domain.NotificationNone, fmt.Sprintf("%ss retrieved successfully.", stageKind))
}

func (s *StageDefinitionService) Add(ctx context.Context, stage domain.StageDefinition) domain.ServiceResult[domain.StageDefinition] {
	ctx = context.WithoutCancel(ctx)
	stage = stampStage(stage, s.h.now(), true)
	if err := validateStage(stage); err != nil {
		return s.fail(ctx, "add", stage, asInvalid(err))
	}
	if stage.PipelineDefinitionID == "" {
		return s.fail(ctx, "add", stage, fail(domain.ErrInvalidInput, "StageDefinition requires a pipeline definition id."))
	}
	p, err := s.h.mutate(ctx, stage.PipelineDefinitionID, func(p *domain.PipelineDefinition) error {
		for _, sibling := range p.Stages {
			if sibling.Name == stage.Name {
				return sameName(stageKind)
			}
		}
		p.Stages = append(p.Stages, stage)
		return nil
	})
	if err != nil {
		return s.fail(ctx, "add", stage, err)
	}
	res := domain.Succeeded(stage, domain.NotificationCreated, fmt.Sprintf("%s %s added successfully.", stageKind, stage.ID))
	notifyNested(ctx, s.h, stageKind, "add", p, res)
	return res
}

// Update replaces the stage's own fields. Its jobs and pipeline back-reference
// are kept from the stored stage.
func (s *StageDefinitionService) Update(ctx context.Context, stage domain.StageDefinition) domain.ServiceResult[domain.StageDefinition] {
	ctx = context.WithoutCancel(ctx)
	if strings.TrimSpace(stage.Name) == "" {
		return s.fail(ctx, "update", stage, fail(domain.ErrInvalidInput, "StageDefinition name is required."))
	}
	located, err := s.h.locateStage(ctx, stage.ID)
	if err != nil {
		return s.fail(ctx, "update", stage, err)
	}
	var updated domain.StageDefinition
	p, err := s.h.mutate(ctx, located.ID, func(p *domain.PipelineDefinition) error {
		idx := p.StageIndex(stage.ID)
		if idx < 0 {
			return notFound(stageKind)
		}
		for i, sibling := range p.Stages {
			if i != idx && sibling.Name == stage.Name {
				return sameName(stageKind)
			}
		}
		stored := p.Stages[idx]
		updated = stage
		updated.PipelineDefinitionID = p.ID
		updated.Jobs = stored.Jobs
		updated.CreatedAt = stored.CreatedAt
		updated = stampStage(updated, s.h.now(), false)
		p.Stages[idx] = updated
		return nil
	})
	if err != nil {
		return s.fail(ctx, "update", stage, err)
	}
	res := domain.Succeeded(updated, domain.NotificationUpdated, fmt.Sprintf("%s %s updated successfully.", stageKind, stage.ID))
	notifyNested(ctx, s.h, stageKind, "update", p, res)
	return res
}

// Delete removes the stage and its jobs in one rewrite of the pipeline.
func (s *StageDefinitionService) Delete(ctx context.Context, id string) domain.ServiceResult[domain.StageDefinition] {
	ctx = context.WithoutCancel(ctx)
	located, err := s.h.locateStage(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", domain.StageDefinition{}, err)
	}
	var deleted domain.StageDefinition
	p, err := s.h.mutate(ctx, located.ID, func(p *domain.PipelineDefinition) error {
		idx := p.StageIndex(id)
		if idx < 0 {
			return notFound(stageKind)
		}
		deleted = p.Stages[idx]
		p.Stages = slices.Delete(p.Stages, idx, idx+1)
		return nil
	})
	if err != nil {
		return s.fail(ctx, "delete", domain.StageDefinition{}, err)
	}
	res := domain.Succeeded(deleted, domain.NotificationDeleted, fmt.Sprintf("%s deleted successfully.", stageKind))
	notifyNested(ctx, s.h, stageKind, "delete", p, res)
	return res
}

// asInvalid keeps typed failures and marks plain validation errors as invalid input.
func asInvalid(err error) error {
	var f *failure
	if errors.As(err, &f) {
		return f
	}
	return fail(domain.ErrInvalidInput, "%s", err.Error())
}
