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

type JobDefinitionService struct {
	h hierarchy
}

func NewJobDefinitionService(pipelines ports.PipelineStore, notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex) *JobDefinitionService {
	return &JobDefinitionService{h: newHierarchy(pipelines, notifier, logger, locks)}
}

const jobKind = domain.KindJobDefinition

func stampJob(j domain.JobDefinition, now time.Time, created bool) domain.JobDefinition {
	j.UpdatedAt = now
	if !created {
		return j
	}
	j.ID = newID()
	j.CreatedAt = now
	return j.Clone()
}

func validateJob(j domain.JobDefinition) error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("JobDefinition name is required.")
	}
	return nil
}

func (s *JobDefinitionService) fail(ctx context.Context, op string, obj domain.JobDefinition, err error) domain.ServiceResult[domain.JobDefinition] {
	return resultFromError(ctx, s.h.logger, jobKind, op, obj, err)
}

func (s *JobDefinitionService) failList(ctx context.Context, op string, err error) domain.ServiceResult[[]domain.JobDefinition] {
	return resultFromError(ctx, s.h.logger, jobKind, op, []domain.JobDefinition{}, err)
}

func retrievedJobs(jobs []domain.JobDefinition) domain.ServiceResult[[]domain.JobDefinition] {
	if jobs == nil {
		jobs = []domain.JobDefinition{}
	}
	return domain.Succeeded(jobs, domain.NotificationNone, fmt.Sprintf("%ss retrieved successfully.", jobKind))
}

func (s *JobDefinitionService) GetByID(ctx context.Context, id string) domain.ServiceResult[domain.JobDefinition] {
	if id == "" {
		return s.fail(ctx, "getById", domain.JobDefinition{}, notFound(jobKind))
	}
	si, ji, p, err := s.h.findJob(ctx, id)
	if err != nil {
		return s.fail(ctx, "getById", domain.JobDefinition{}, err)
	}
	return domain.Succeeded(p.Stages[si].Jobs[ji], domain.NotificationNone, fmt.Sprintf("%s %s retrieved successfully.", jobKind, id))
}

func (s *JobDefinitionService) GetAll(ctx context.Context) domain.ServiceResult[[]domain.JobDefinition] {
	all, err := s.h.pipelines.GetAll(ctx)
	if err != nil {
		return s.failList(ctx, "getAll", err)
	}
	jobs := []domain.JobDefinition{}
	for _, p := range all {
		jobs = append(jobs, p.AllJobs()...)
	}
	return retrievedJobs(jobs)
}

// GetAllInStage returns the jobs embedded in the stage, located by scanning
// every pipeline.
func (s *JobDefinitionService) GetAllInStage(ctx context.Context, stageID string) domain.ServiceResult[[]domain.JobDefinition] {
	p, err := s.h.locateStage(ctx, stageID)
	if err != nil {
		return s.failList(ctx, "getAllInStage", err)
	}
	return retrievedJobs(slices.Clone(p.Stages[p.StageIndex(stageID)].Jobs))
}

// GetAllInPipeline returns the jobs of every stage of the pipeline in stage order.
func (s *JobDefinitionService) GetAllInPipeline(ctx context.Context, pipelineID string) domain.ServiceResult[[]domain.JobDefinition] {
	if pipelineID == "" {
		return s.failList(ctx, "getAllInPipeline", notFound(domain.KindPipelineDefinition))
	}
	p, err := s.h.pipelines.Get(ctx, pipelineID)
	if errors.Is(err, domain.ErrNotFound) {
		err = notFound(domain.KindPipelineDefinition)
	}
	if err != nil {
		return s.failList(ctx, "getAllInPipeline", err)
	}
	return retrievedJobs(p.AllJobs())
}

func (s *JobDefinitionService) Add(ctx context.Context, job domain.JobDefinition) domain.ServiceResult[domain.JobDefinition] {
	ctx = context.WithoutCancel(ctx)
	job = stampJob(job, s.h.now(), true)
	if err := validateJob(job); err != nil {
		return s.fail(ctx, "add", job, asInvalid(err))
	}
	if job.PipelineDefinitionID == "" || job.StageDefinitionID == "" {
		return s.fail(ctx, "add", job, fail(domain.ErrInvalidInput, "JobDefinition requires pipeline and stage definition ids."))
	}
	p, err := s.h.mutate(ctx, job.PipelineDefinitionID, func(p *domain.PipelineDefinition) error {
		si := p.StageIndex(job.StageDefinitionID)
		if si < 0 {
			return notFound(stageKind)
		}
		for _, sibling := range p.Stages[si].Jobs {
			if sibling.Name == job.Name {
				return sameName(jobKind)
			}
		}
		p.Stages[si].Jobs = append(p.Stages[si].Jobs, job)
		return nil
	})
	if err != nil {
		return s.fail(ctx, "add", job, err)
	}
	res := domain.Succeeded(job, domain.NotificationCreated, fmt.Sprintf("%s %s added successfully.", jobKind, job.ID))
	notifyNested(ctx, s.h, jobKind, "add", p, res)
	return res
}

// Update replaces the job in its stage. The stored back-references win over
// the ones supplied, so a job never moves between stages.
func (s *JobDefinitionService) Update(ctx context.Context, job domain.JobDefinition) domain.ServiceResult[domain.JobDefinition] {
	ctx = context.WithoutCancel(ctx)
	if err := validateJob(job); err != nil {
		return s.fail(ctx, "update", job, asInvalid(err))
	}
	located, err := s.h.locateJob(ctx, job.ID)
	if err != nil {
		return s.fail(ctx, "update", job, err)
	}
	var updated domain.JobDefinition
	p, err := s.h.mutate(ctx, located.ID, func(p *domain.PipelineDefinition) error {
		si, ji := jobPosition(*p, job.ID)
		if ji < 0 {
			return notFound(jobKind)
		}
		siblings := p.Stages[si].Jobs
		for i, sibling := range siblings {
			if i != ji && sibling.Name == job.Name {
				return sameName(jobKind)
			}
		}
		stored := siblings[ji]
		updated = job.Clone()
		updated.PipelineDefinitionID = p.ID
		updated.StageDefinitionID = p.Stages[si].ID
		updated.CreatedAt = stored.CreatedAt
		updated = stampJob(updated, s.h.now(), false)
		siblings[ji] = updated
		return nil
	})
	if err != nil {
		return s.fail(ctx, "update", job, err)
	}
	res := domain.Succeeded(updated, domain.NotificationUpdated, fmt.Sprintf("%s %s updated successfully.", jobKind, job.ID))
	notifyNested(ctx, s.h, jobKind, "update", p, res)
	return res
}

func (s *JobDefinitionService) Delete(ctx context.Context, id string) domain.ServiceResult[domain.JobDefinition] {
	ctx = context.WithoutCancel(ctx)
	located, err := s.h.locateJob(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", domain.JobDefinition{}, err)
	}
	var deleted domain.JobDefinition
	p, err := s.h.mutate(ctx, located.ID, func(p *domain.PipelineDefinition) error {
		si, ji := jobPosition(*p, id)
		if ji < 0 {
			return notFound(jobKind)
		}
		deleted = p.Stages[si].Jobs[ji]
		p.Stages[si].Jobs = slices.Delete(p.Stages[si].Jobs, ji, ji+1)
		return nil
	})
	if err != nil {
		return s.fail(ctx, "delete", domain.JobDefinition{}, err)
	}
	res := domain.Succeeded(deleted, domain.NotificationDeleted, fmt.Sprintf("%s deleted successfully.", jobKind))
	notifyNested(ctx, s.h, jobKind, "delete", p, res)
	return res
}
